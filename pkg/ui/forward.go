package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/go-go-golems/chatline/pkg/chatview"
)

// FrameForwarder injects chat view frames into the program p. It is safe to call
// from the transport's delivery goroutine.
func FrameForwarder(p *tea.Program) chatview.Renderer {
	return chatview.RendererFunc(func(f chatview.Frame) {
		p.Send(FrameMsg(f))
	})
}
