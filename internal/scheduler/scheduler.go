package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/thejerf/suture/v4"

	"github.com/kebairia/budgetease/internal/logger"
)

const supervisorName = "budgetease-scheduler"

// Scheduler supervises a set of loops. The loops run independently.
type Scheduler struct {
	root  *suture.Supervisor
	loops []*Loop
}

// New builds a supervisor over loops. Supervisor events go to log.
func New(log logger.Logger, loops ...*Loop) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	root := suture.New(supervisorName, suture.Spec{
		EventHook:        eventHook(log),
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          10 * time.Second,
	})
	for _, l := range loops {
		root.Add(l)
	}
	return &Scheduler{root: root, loops: loops}
}

// Loops returns the supervised loops.
func (s *Scheduler) Loops() []*Loop { return s.loops }

// Run serves every loop until ctx is cancelled. Cancellation is a normal
// shutdown and returns nil.
func (s *Scheduler) Run(ctx context.Context) error {
	err := s.root.Serve(ctx)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return errors.Wrap(err, "scheduler")
}

func eventHook(log logger.Logger) suture.EventHook {
	return func(e suture.Event) {
		fields := e.Map()
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		kv := make([]any, 0, 2*len(keys))
		for _, k := range keys {
			kv = append(kv, k, fields[k])
		}

		switch e.Type() {
		case suture.EventTypeServicePanic, suture.EventTypeServiceTerminate, suture.EventTypeStopTimeout:
			log.Error(e.String(), kv...)
		case suture.EventTypeBackoff:
			log.Warn(e.String(), kv...)
		default:
			log.Info(e.String(), kv...)
		}
	}
}
