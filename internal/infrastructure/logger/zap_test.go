package logger

import (
	"testing"

	"github.com/nalgeon/be"
)

func TestNew(t *testing.T) {
	log, err := New("debug", "json")
	be.Err(t, err, nil)
	be.True(t, log.Desugar().Core().Enabled(-1))

	_, err = New("loud", "json")
	be.Err(t, err, "parse log level")

	_, err = New("info", "xml")
	be.Err(t, err, "unknown log format")
}

func TestMustFallsBack(t *testing.T) {
	be.True(t, Must("nope", "") != nil)
}
