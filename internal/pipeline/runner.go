package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
)

// waitDelay bounds how long Wait keeps draining stdio after a process has
// been killed or has exited while a grandchild still holds its pipes.
const waitDelay = 10 * time.Second

type Command struct {
	// Name labels the process in errors and logs. Defaults to the base of Path.
	Name string
	Path string
	Args []string
	// Env is appended to the current environment.
	Env []string
}

func (c Command) label() string {
	if c.Name != "" {
		return c.Name
	}
	return filepath.Base(c.Path)
}

func (c Command) build(ctx context.Context) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.WaitDelay = waitDelay
	return cmd
}

// Spec describes a two-stage process pipeline: Stdin -> Producer -> Consumer -> Sink.
type Spec struct {
	Producer Command
	Consumer Command
	// Stdin feeds the producer. Nil means the producer reads from the null device.
	Stdin io.Reader
	// Sink receives the consumer's stdout and is always closed by Run.
	// Nil means Discard.
	Sink Sink
	// TailBytes bounds the stderr retained per process. Zero means DefaultTailBytes.
	TailBytes int
	// StderrLog, if set, additionally receives both processes' stderr as it arrives.
	StderrLog io.Writer
}

// Result carries stderr tails for callers that surface warnings on success.
type Result struct {
	ProducerStderr string
	ConsumerStderr string
}

// Run starts both processes, connects them through an OS pipe and waits for
// both to exit and for the sink to close. It succeeds only when both exit 0
// and the sink reports its data durable. When one process fails the other is
// killed. A process that died from a signal (SIGPIPE after its peer exited,
// or the kill itself) is only blamed when the peer did not fail on its own.
func Run(ctx context.Context, spec Spec) (Result, error) {
	sink := spec.Sink
	if sink == nil {
		sink = Discard
	}
	prodTail := NewTailBuffer(spec.TailBytes)
	consTail := NewTailBuffer(spec.TailBytes)
	result := func() Result {
		return Result{ProducerStderr: prodTail.String(), ConsumerStderr: consTail.String()}
	}

	g, gctx := errgroup.WithContext(ctx)
	producer := spec.Producer.build(gctx)
	consumer := spec.Consumer.build(gctx)
	prodName, consName := spec.Producer.label(), spec.Consumer.label()

	pr, pw, err := os.Pipe()
	if err != nil {
		_ = sink.Close()
		return result(), &FilesystemError{Op: "pipe", Path: prodName + "|" + consName, Err: err}
	}

	producer.Stdin = spec.Stdin
	producer.Stdout = pw
	producer.Stderr = stderrWriter(prodTail, spec.StderrLog)
	consumer.Stdin = pr
	consumer.Stdout = sink
	consumer.Stderr = stderrWriter(consTail, spec.StderrLog)

	if err := producer.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		_ = sink.Close()
		return result(), &SpawnError{Name: prodName, Err: err}
	}
	// The children own their ends now; keeping ours open would hide EOF/EPIPE.
	_ = pw.Close()

	if err := consumer.Start(); err != nil {
		_ = pr.Close()
		_ = producer.Process.Kill()
		_ = producer.Wait()
		_ = sink.Close()
		return result(), &SpawnError{Name: consName, Err: err}
	}
	_ = pr.Close()

	// errgroup cancels gctx on the first failure, which kills the peer. The
	// reported error is chosen from both results, not from whichever Wait
	// returned first.
	var prodErr, consErr error
	g.Go(func() error {
		prodErr = wait(producer, prodName, prodTail)
		return prodErr
	})
	g.Go(func() error {
		consErr = wait(consumer, consName, consTail)
		return consErr
	})
	_ = g.Wait()
	runErr := failure(prodErr, consErr)
	closeErr := sink.Close()

	if runErr != nil {
		if ctx.Err() != nil {
			return result(), fmt.Errorf("pipeline %s|%s aborted: %w", prodName, consName, ctx.Err())
		}
		return result(), runErr
	}
	if closeErr != nil {
		var fsErr *FilesystemError
		if errors.As(closeErr, &fsErr) {
			return result(), closeErr
		}
		return result(), &FilesystemError{Op: "close sink", Path: consName, Err: closeErr}
	}
	return result(), nil
}

// failure picks the error to report when one or both processes failed.
// The producer wins ties since its failure is usually the cause.
func failure(prodErr, consErr error) error {
	switch {
	case prodErr == nil:
		return consErr
	case consErr == nil:
		return prodErr
	case signaled(prodErr) && !signaled(consErr):
		return consErr
	default:
		return prodErr
	}
}

func signaled(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.ExitCode == -1
}

func wait(cmd *exec.Cmd, name string, tail *TailBuffer) error {
	err := cmd.Wait()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Name: name, ExitCode: exitErr.ExitCode(), StderrTail: tail.String(), Err: err}
	}
	// Exited 0 but stdio copying failed, e.g. the sink could not be written.
	return &FilesystemError{Op: "stream", Path: name, Err: err}
}

func stderrWriter(tail *TailBuffer, log io.Writer) io.Writer {
	if log == nil {
		return tail
	}
	return io.MultiWriter(tail, log)
}
