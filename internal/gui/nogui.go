//go:build nogui

package gui

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/srg/hrmon/internal/monitor"
)

// Available reports whether the binary was built with the desktop shell
const Available = false

// ErrUnavailable is returned when the binary was built with the nogui tag
var ErrUnavailable = errors.New("desktop shell not available: built with the nogui tag, use --shell console")

// Main blocks forever; without a toolkit there is no main-thread loop to run
func Main() {
	select {}
}

// Shell is a placeholder that always fails
type Shell struct{}

func New(ChartSource, *logrus.Logger) (*Shell, error) {
	return nil, ErrUnavailable
}

func (s *Shell) Run(context.Context, <-chan monitor.Event, func()) error {
	return ErrUnavailable
}
