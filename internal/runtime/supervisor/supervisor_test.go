package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"
)

func waitAll(t *testing.T, s *Supervisor) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestGoRecordsFirstError(t *testing.T) {
	t.Parallel()
	s := New(context.Background())

	errBoom := errors.New("boom")
	s.Go("a", func(ctx context.Context) error { return errBoom })
	waitAll(t, s)

	if err := s.Err(); !errors.Is(err, errBoom) {
		t.Fatalf("Err = %v, want %v", err, errBoom)
	}
	if s.Active() != 0 {
		t.Fatalf("Active = %d, want 0", s.Active())
	}
}

func TestGoIgnoresContextCanceled(t *testing.T) {
	t.Parallel()
	s := New(context.Background())

	s.Go("a", func(ctx context.Context) error { return context.Canceled })
	waitAll(t, s)

	if err := s.Err(); err != nil {
		t.Fatalf("Err = %v, want nil", err)
	}
}

func TestCancelOnError(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithCancelOnError(true))

	s.Go("failing", func(ctx context.Context) error { return errors.New("boom") })
	s.Go("blocked", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	waitAll(t, s)

	if s.Context().Err() == nil {
		t.Fatal("context not canceled after error")
	}
}

func TestGoRecoversPanic(t *testing.T) {
	t.Parallel()
	s := New(context.Background())

	s.Go("panicky", func(ctx context.Context) error { panic("kaboom") })
	waitAll(t, s)

	if err := s.Err(); err == nil {
		t.Fatal("panic not recorded as error")
	}
}

func TestGoRestartRetriesUntilSuccess(t *testing.T) {
	t.Parallel()
	s := New(context.Background())

	runs := 0
	s.GoRestart("flaky", func(ctx context.Context) error {
		runs++
		if runs < 3 {
			return errors.New("transient")
		}
		return nil
	}, WithRestartBackoff(time.Millisecond, 2*time.Millisecond))
	waitAll(t, s)

	if runs != 3 {
		t.Fatalf("runs = %d, want 3", runs)
	}
}

func TestGoRestartGivesUp(t *testing.T) {
	t.Parallel()
	s := New(context.Background())

	runs := 0
	s.GoRestart("doomed", func(ctx context.Context) error {
		runs++
		return errors.New("permanent")
	}, WithRestartBackoff(time.Millisecond, 2*time.Millisecond), WithMaxRestarts(2))
	waitAll(t, s)

	// Initial run plus two restarts.
	if runs != 3 {
		t.Fatalf("runs = %d, want 3", runs)
	}
	if s.Err() == nil {
		t.Fatal("expected recorded error")
	}
}

func TestGoRestartStopsOnCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	s := New(ctx)

	started := make(chan struct{})
	s.GoRestart("loop", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	<-started
	cancel()
	waitAll(t, s)

	if err := s.Err(); err != nil {
		t.Fatalf("Err = %v, want nil after clean cancel", err)
	}
}
