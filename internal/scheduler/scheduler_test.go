package scheduler

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type noopJob struct{}

func (noopJob) Run() error   { return nil }
func (noopJob) Name() string { return "noop" }

func TestAddJob(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	s := New(log)

	assert.NoError(t, s.AddJob("@every 10m", noopJob{}))
	assert.NoError(t, s.AddJob("@daily", noopJob{}))
	assert.Error(t, s.AddJob("not a schedule", noopJob{}))

	s.Start()
	s.Stop()
}
