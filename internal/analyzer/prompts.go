package analyzer

import (
	"encoding/json"

	"github.com/YKarmar/JobDigest/internal/llm"
)

// 第一阶段：只看主题，剔除明显与招聘无关的邮件
const triageInstructions = `You are given a list of emails, one per line, in the form "<email id><TAB><email subject>".

Your task is to filter out every email whose subject shows it is NOT related to internships or job hiring, and return the ids of the emails that are left.

Many emails will be about topics such as lost and found, hackathons, university clubs or societies, workshops and seminars. Rule those out and do not include their ids in the reply.

If you are unsure whether an email is related to internships or job hiring based on the subject alone, include its id in the reply anyway.

Input example:
195d64s7h1eb0ac3	Invitation to Workshop on Product Design and Development by Prof. XYZ
195h4dhefd18dbf2	Fwd: UPDATE: JPMorganChase | Online Test Instructions - Summer Internship 2026
195d5b048cc11157	Fwd: Lost Book Found
1912186480d8d4av	@ UG 6th Sem and above /PG : Summer internship at NIT, Warangal, Telangana

Reply for the example above (ids separated by a single space, nothing else):
195h4dhefd18dbf2 1912186480d8d4av

If no email is left, reply with an empty message.`

// 第二阶段：从正文中提取结构化信息
const extractInstructions = `You are given the text extracted from an email about internships or job hiring. Extract the important information and reply with a single JSON object.

Fields:
- company_name: the hiring company
- position: the position being hired for (intern, SDE etc)
- application_link: where to apply
- application_deadline: the application deadline
- requirements: a list of requirements
- other: a list of any other information that seems important (stipend, location, process)

Rules:
- If a detail is not mentioned in the text, set that field to "Not Found". For requirements and other use ["Not Found"].
- Ignore filler such as "why join us" and anything after the signature ("Thanks", "Regards").
- Check for false positives. If the text is not actually about internships or job hiring, set EVERY field to "False Positive" (the lists become ["False Positive"]). Never mix "False Positive" with real values.
- Reply with the JSON object only, using exactly these six keys.

Reply example:
{
  "company_name": "ABC",
  "position": "ML intern",
  "application_link": "xyz.com",
  "application_deadline": "28/3/2025 9pm",
  "requirements": ["CGPA > 8", "Python"],
  "other": ["Stipend = $100"]
}`

// 与 types.JobPosting 一一对应，字段全部必填
var jobPostingSchema = &llm.Schema{
	Name: "job_posting",
	Definition: json.RawMessage(`{
  "type": "object",
  "properties": {
    "company_name": {"type": "string"},
    "position": {"type": "string"},
    "application_link": {"type": "string"},
    "application_deadline": {"type": "string"},
    "requirements": {"type": "array", "items": {"type": "string"}},
    "other": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["company_name", "position", "application_link", "application_deadline", "requirements", "other"],
  "additionalProperties": false
}`),
}
