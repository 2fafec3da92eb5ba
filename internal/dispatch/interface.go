package dispatch

import (
	"context"

	"github.com/mattjoyce/knock/internal/executor"
	"github.com/mattjoyce/knock/internal/history"
	"github.com/mattjoyce/knock/internal/protocol"
)

//go:generate mockgen -destination=mocks/mock_dispatch.go -package=mocks github.com/mattjoyce/knock/internal/dispatch Executor,Recorder

// Executor runs one command line to completion.
type Executor interface {
	Run(line string) (executor.Result, error)
}

// Recorder persists executed commands.
type Recorder interface {
	Record(ctx context.Context, e history.Entry) (string, error)
}

// Source yields queued messages. *queue.Queue satisfies it.
type Source interface {
	Recv(ctx context.Context) (protocol.Message, error)
}
