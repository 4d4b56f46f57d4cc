// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package logger

import (
	"fmt"
	"testing"

	"go.astrophena.name/cardbot/internal/testutil"
)

func TestStreamerLines(t *testing.T) {
	t.Parallel()

	s := NewStreamer(10)
	fmt.Fprintf(s, "line one\nline two\n")

	testutil.AssertEqual(t, s.Lines(), []string{"line one\n", "line two\n"})
}

func TestStreamerPartialWrites(t *testing.T) {
	t.Parallel()

	s := NewStreamer(10)
	fmt.Fprintf(s, "beginning ")
	fmt.Fprintf(s, "and end\n")

	testutil.AssertEqual(t, s.Lines(), []string{"beginning and end\n"})
}

func TestStreamerRollover(t *testing.T) {
	t.Parallel()

	const size = 3
	s := NewStreamer(size)
	for i := range 5 {
		fmt.Fprintf(s, "line %d\n", i)
	}

	testutil.AssertEqual(t, s.Lines(), []string{"line 2\n", "line 3\n", "line 4\n"})
}

func TestStream(t *testing.T) {
	t.Parallel()

	s := NewStreamer(10)
	lines, closeFunc := s.Stream()
	defer closeFunc()

	fmt.Fprintf(s, "hello\n")

	testutil.AssertEqual(t, <-lines, "hello\n")
}
