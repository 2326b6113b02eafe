package watch

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
)

// stringSlice is a flag.Value that collects multiple -r or -d flags.
type stringSlice []string

func (s *stringSlice) String() string {
	return fmt.Sprintf("%v", *s)
}

func (s *stringSlice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

// Run is the main entry point for the CLI. It watches the given directories
// and logs a line each time a burst of filesystem activity settles.
func Run() {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)

	var recursiveDirs stringSlice
	var dirs stringSlice
	var wait time.Duration
	var maxWait time.Duration

	fs.Var(&recursiveDirs, "r", "Recursive watch directory (can be repeated)")
	fs.Var(&dirs, "d", "Non-recursive watch directory (can be repeated)")
	fs.DurationVar(&wait, "wait", 250*time.Millisecond, "Quiet period before changes are reported")
	fs.DurationVar(&maxWait, "max-wait", 2*time.Second, "Upper bound on how long reporting may be deferred (0 disables)")

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}

	if len(dirs) == 0 && len(recursiveDirs) == 0 {
		dirs = []string{"."}
	}

	fsWatcher, err := NewRealFSWatcher()
	if err != nil {
		log.Fatalf("Failed to create filesystem watcher: %v", err)
	}

	c, err := NewCoalescer(Config{
		Paths:          dirs,
		RecursivePaths: recursiveDirs,
		Wait:           wait,
		MaxWait:        maxWait,
	}, Callbacks{
		OnSettle: func(ev fsnotify.Event) {
			log.Printf("Changes settled: %s (%s)", ev.Name, ev.Op)
		},
	}, fsWatcher)
	if err != nil {
		log.Fatalf("Failed to create coalescer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go c.Start(ctx)

	log.Printf("Watching directories: %v (non-recursive), %v (recursive)", dirs, recursiveDirs)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	if err := c.Close(); err != nil {
		log.Printf("Error closing watcher: %v", err)
	}
}
