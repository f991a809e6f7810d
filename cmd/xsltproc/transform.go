package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/midbel/cli"
	"github.com/midbel/codecs/xml"

	"github.com/xcential/xslt"
)

var transformCmd = TransformCmd{}

type TransformCmd struct {
	Mode     string
	Params   string
	File     string
	Trace    bool
	Quiet    bool
	Progress bool
}

func (c *TransformCmd) Run(args []string) error {
	set := cli.NewFlagSet("transform")
	set.BoolVar(&c.Quiet, "q", false, "quiet")
	set.StringVar(&c.Mode, "m", "", "initial mode")
	set.StringVar(&c.Params, "p", "", "comma separated name=value parameters")
	set.StringVar(&c.File, "f", "", "output file")
	set.BoolVar(&c.Trace, "trace", false, "trace instructions to stderr")
	set.BoolVar(&c.Progress, "progress", false, "show a spinner while transforming")

	if err := set.Parse(args); err != nil {
		return err
	}
	if set.Arg(0) == "" || set.Arg(1) == "" {
		return fmt.Errorf("usage: xsltproc transform [options] <stylesheet> <document>")
	}

	doc, err := parseDocument(set.Arg(1))
	if err != nil {
		return err
	}
	transform, err := parseDocument(set.Arg(0))
	if err != nil {
		return err
	}

	opts := xslt.Options{
		Mode:         c.Mode,
		InputURL:     set.Arg(1),
		TransformURL: set.Arg(0),
		Debug:        c.Trace,
	}

	var out string
	run := func() error {
		res, err := xslt.Process(context.Background(), doc, transform, c.params(), &opts)
		if err != nil {
			return err
		}
		out = res
		return nil
	}
	if c.Progress {
		err = runWithProgress(fmt.Sprintf("transforming %s", set.Arg(1)), run)
	} else {
		err = run()
	}
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if c.Quiet {
		w = io.Discard
	} else if c.File != "" {
		f, err := os.Create(c.File)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	_, err = io.WriteString(w, out)
	return err
}

func (c *TransformCmd) params() map[string]any {
	if c.Params == "" {
		return nil
	}
	params := make(map[string]any)
	for _, pair := range strings.Split(c.Params, ",") {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		params[strings.TrimSpace(name)] = value
	}
	return params
}

func parseDocument(file string) (*xml.Document, error) {
	r, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	p := xml.NewParser(r)
	return p.Parse()
}
