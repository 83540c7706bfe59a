package rfslog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestInfofIsEmittedAtDefaultLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, logrus.InfoLevel)

	log.Infof("store", "listening on %s", ":7000")

	out := buf.String()
	assert.Contains(t, out, "listening on :7000")
	assert.Contains(t, out, "source=store")
}

func TestDebugfIsSuppressedBelowDebugLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, logrus.InfoLevel)

	log.Debugf("cache", "hit for key %s", "abc")

	assert.Empty(t, buf.String())
}

func TestSetLevelDebugCountZeroIsInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, logrus.InfoLevel)
	log.SetLevel(0)

	log.Debugf("cache", "suppressed")
	log.Infof("cache", "visible")

	out := buf.String()
	assert.False(t, strings.Contains(out, "suppressed"))
	assert.True(t, strings.Contains(out, "visible"))
}

func TestSetLevelDebugCountOneEnablesDebug(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, logrus.InfoLevel)
	log.SetLevel(1)

	log.Debugf("cache", "now visible")

	assert.Contains(t, buf.String(), "now visible")
}

func TestSetLevelDebugCountTwoEnablesTraceAndCaller(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, logrus.InfoLevel)
	log.SetLevel(2)

	log.Errorf("mount", "boom: %v", assert.AnError)

	assert.Contains(t, buf.String(), "boom:")
	assert.Equal(t, logrus.TraceLevel, log.l.GetLevel())
	assert.Contains(t, buf.String(), "func=")
}
