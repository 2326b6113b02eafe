package debounce_test

import (
	"fmt"
	"time"

	"github.com/tylergannon/go-debounce"
)

func ExampleDebouncer() {
	done := make(chan struct{})

	// Only search once typing has paused.
	d, _ := debounce.New(50*time.Millisecond, debounce.Callbacks[string]{
		OnTrailing: func(query string, active bool) {
			if active {
				fmt.Printf("searching for %q\n", query)
				close(done)
			}
		},
	})
	defer d.Close()

	for _, query := range []string{"g", "go", "gop", "goph", "gopher"} {
		d.Trigger(query)
		time.Sleep(10 * time.Millisecond)
	}

	<-done
	// Output: searching for "gopher"
}
