package badger

import (
	"fmt"
	"strings"
)

// logger routes badger's own messages into the package log. Badger is
// chatty at info level so its info lines are logged as debug.
type logger struct {
	Label string
}

func (l logger) line(s string, i ...interface{}) string {
	return strings.TrimSpace(fmt.Sprintf(l.Label+": "+s, i...))
}

func (l logger) Errorf(s string, i ...interface{})   { log.E.Ln(l.line(s, i...)) }
func (l logger) Warningf(s string, i ...interface{}) { log.W.Ln(l.line(s, i...)) }
func (l logger) Infof(s string, i ...interface{})    { log.D.Ln(l.line(s, i...)) }
func (l logger) Debugf(s string, i ...interface{})   { log.T.Ln(l.line(s, i...)) }
