package digest

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Background(lipgloss.Color("63")).Foreground(lipgloss.Color("255")).Padding(0, 1)
	emptyStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "240", Dark: "244"}).Italic(true)
	contentStyle = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true).Padding(0, 1)
)

// 在终端预览摘要，不发送
func Preview(w io.Writer, r *Rendered) error {
	body := r.Text
	if r.Empty {
		body = emptyStyle.Render(r.Text)
	}
	_, err := fmt.Fprintf(w, "%s\n%s\n", titleStyle.Render(r.Subject), contentStyle.Render(body))
	return err
}
