// Copyright 2025 The CodeServe Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package main implements the CodeServe pattern server and its CLI [DBG] tools.

Note: This is a BETA release. APIs and functionality may rapidly change.

CodeServe learns recurring code structures from the JavaScript and TypeScript
you write and predicts the rest of the line you are typing. It runs as a
MessagePack IPC server next to an editor, or as a CLI for testing and
debugging.

# Usage

Start the server with default settings:

	codeserve

Use a custom data directory and enable debug mode:

	codeserve --data /path/to/db -d

Learn from files on disk, then try predictions interactively:

	codeserve learn src/*.ts
	codeserve cli --lang typescript

Print a structure report for a workspace:

	codeserve report ./src --format md

# Configuration

Runtime configuration lives in a TOML file, created with defaults when it
does not exist:

	[engine]
	min_confidence = 0.3
	typing_pause_ms = 1500
	min_fragment_length = 20
	max_patterns = 1000

	[server]
	max_line_length = 400
	metrics_addr = ""

Flags given on the command line win over the file.

# IPC Protocol

The server reads MessagePack requests from stdin and writes one response per
request to stdout. Logs go to stderr.

	{"id": "p1", "action": "predict", "line": "if (ready) {", "lang": "javascript"}
	{"id": "p1", "kind": "conditional", "code": "\n  \n}", "conf": 0.6, "t": 87}

See package server for the full list of actions.

# Storage

Learned patterns and saved snippets are kept in a badger database under the
data directory. Snippets are sealed with a per-install key before they are
written.
*/
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/awnumar/memguard"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

const (
	Version = "0.1.0-beta"
	AppName = "codeserve"
	gh      = "https://github.com/bastiangx/codeserve"
)

// sigHandler runs onExit once an interrupt or SIGTERM arrives, then exits.
func sigHandler(onExit func()) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		fmt.Fprintf(os.Stderr, "\nExiting...\n")
		if onExit != nil {
			onExit()
		}
		memguard.Purge()
		os.Exit(0)
	}()
}

// main only manages the flow; commands live in commands.go.
func main() {
	defer memguard.Purge()
	if err := rootCmd.Execute(); err != nil {
		memguard.Purge()
		os.Exit(1)
	}
}

func showVersion() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    false,
		ReportTimestamp: false,
		Prefix:          "",
	})

	styles := log.DefaultStyles()
	styles.Values["version"] = lipgloss.NewStyle().Bold(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"}).
		Background(lipgloss.AdaptiveColor{Light: "#f2e9e1", Dark: "#26233a"})
	styles.Values["gh"] = lipgloss.NewStyle().Italic(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
	logger.SetStyles(styles)

	logger.Print("")
	logger.Print("[ CodeServe ] Learns your code and finishes the line!")
	logger.Print("", "version", Version)
	logger.Print("")
	logger.Print("use -h or --help to see available options")
	logger.Print("Github Repo", "gh", gh)
}

// showStartupInfo displays some basic info about the init process.
func showStartupInfo(dataDir string, patterns int) {
	pid := os.Getpid()
	currentLevel := log.GetLevel()
	log.SetLevel(log.InfoLevel)

	fmt.Fprintln(os.Stderr, "===========")
	fmt.Fprintln(os.Stderr, " CodeServe ")
	fmt.Fprintln(os.Stderr, "===========")
	log.Infof("Version: %s", Version)
	log.Infof("Process ID: [ %d ]", pid)
	log.Info("init: OK")
	log.Infof("data dir: ( %s )", dataDir)
	log.Infof("patterns: [ %d ]", patterns)
	log.Info("status: ready")
	fmt.Fprintln(os.Stderr, "===========")
	fmt.Fprintln(os.Stderr, "Press Ctrl+C to exit")

	log.SetLevel(currentLevel)
}
