// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package ds

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/nishisan-dev/airbridge/internal/logging"
)

func TestFramerEmitsLinesAndPrompts(t *testing.T) {
	var f framer
	var tokens []string
	var prompts []bool

	for _, c := range []byte("line one\n1>garbage>2>\n") {
		token, isPrompt, ok := f.feed(c)
		if ok {
			tokens = append(tokens, token)
			prompts = append(prompts, isPrompt)
		}
	}

	want := []string{"line one\n", "1>", "garbage>2>\n"}
	if len(tokens) != len(want) {
		t.Fatalf("tokens = %q, want %q", tokens, want)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Errorf("token[%d] = %q, want %q", i, tokens[i], want[i])
		}
	}
	// "garbage>" não fecha prompt porque o acumulado não é número;
	// "2>" no meio da linha também não, pois o acumulado é "garbage>2".
	if !prompts[1] {
		t.Error("token 1> should be a prompt")
	}
	if prompts[0] || prompts[2] {
		t.Error("lines must not be flagged as prompts")
	}
}

func TestFramerFlushEmitsResidue(t *testing.T) {
	var f framer
	for _, c := range []byte("partial") {
		f.feed(c)
	}
	token, ok := f.flush()
	if !ok || token != "partial" {
		t.Fatalf("flush = %q, %v; want \"partial\", true", token, ok)
	}
	if _, ok := f.flush(); ok {
		t.Fatal("second flush should be empty")
	}
}

func TestReadUntilLineBootHandshake(t *testing.T) {
	logger := logging.NewNopLogger()

	// Stdout falso do boot: banner + prompt, depois a resposta ao "host\n"
	// com o prompt seguinte.
	r := strings.NewReader("il2server 1.0\n1>localhost: Server\n2>")

	var got []string
	record := func(s string) { got = append(got, s) }

	err := ReadUntilLine(r, "STDOUT", "host\n", "localhost: Server\n", record, record, logger)
	if err != nil {
		t.Fatalf("ReadUntilLine failed: %v", err)
	}

	want := []string{
		"il2server 1.0\n",
		"1>",
		"host\n",
		"localhost: Server\n",
		"2>",
	}
	if len(got) != len(want) {
		t.Fatalf("handler got %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestReadUntilLineFailsOnEarlyEOF(t *testing.T) {
	logger := logging.NewNopLogger()
	r := strings.NewReader("il2server 1.0\n1>")

	err := ReadUntilLine(r, "STDOUT", "host\n", "localhost: Server\n", nil, nil, logger)
	if !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("err = %v, want ErrStreamClosed", err)
	}
}

func TestReadUntilEndFlushesResidue(t *testing.T) {
	logger := logging.NewNopLogger()

	var lines, prompts []string
	r := io.MultiReader(
		strings.NewReader("full line\n3>tail without newline"),
	)

	ReadUntilEnd(r, "STDOUT",
		func(s string) { lines = append(lines, s) },
		func(s string) { prompts = append(prompts, s) },
		logger,
	)

	if len(lines) != 2 || lines[0] != "full line\n" || lines[1] != "tail without newline" {
		t.Fatalf("lines = %q", lines)
	}
	if len(prompts) != 1 || prompts[0] != "3>" {
		t.Fatalf("prompts = %q", prompts)
	}
}
