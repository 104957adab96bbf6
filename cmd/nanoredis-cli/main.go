/*
Copyright (C) 2023  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// nanoredis-cli is an interactive RESP client, the same readline-driven REPL
// shape as scm/prompt.go's Repl: read a line, send it as a command, print
// the reply, repeat.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/chzyer/readline"
)

func main() {
	host := flag.String("host", "127.0.0.1", "server host")
	port := flag.Int("port", 9527, "server port")
	flag.Parse()

	addr := fmt.Sprintf("%s:%d", *host, *port)
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		fmt.Println("could not connect:", err)
		return
	}
	defer conn.Close()

	client := newClient(conn)

	l, err := readline.NewEx(&readline.Config{
		Prompt:            fmt.Sprintf("\033[32m%s>\033[0m ", addr),
		HistoryFile:       ".nanoredis-cli-history.tmp",
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		panic(err)
	}
	defer l.Close()
	l.CaptureExitSignal()

	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			break
		} else if err != nil {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		args := splitArgs(line)
		if len(args) == 0 {
			continue
		}
		if strings.EqualFold(args[0], "exit") || strings.EqualFold(args[0], "quit") {
			client.send(args)
			break
		}
		reply, err := client.send(args)
		if err != nil {
			fmt.Println("error:", err)
			if err == io.EOF {
				break
			}
			continue
		}
		printReply(reply, 0)
	}
}

// splitArgs is a minimal whitespace/quote tokenizer, enough for interactive
// use; it doesn't need to match RESP's own inline-command parser exactly
// since this only ever builds an outgoing command, never parses one.
func splitArgs(line string) []string {
	var args []string
	var cur bytes.Buffer
	inQuote := false
	var quoteChar byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case inQuote:
			if c == quoteChar {
				inQuote = false
			} else {
				cur.WriteByte(c)
			}
		case c == '"' || c == '\'':
			inQuote = true
			quoteChar = c
		case c == ' ' || c == '\t':
			if cur.Len() > 0 {
				args = append(args, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteByte(c)
		}
	}
	if cur.Len() > 0 {
		args = append(args, cur.String())
	}
	return args
}

func printReply(r reply, depth int) {
	indent := strings.Repeat("  ", depth)
	switch r.kind {
	case replyArray:
		if r.isNull {
			fmt.Printf("%s(nil)\n", indent)
			return
		}
		if len(r.items) == 0 {
			fmt.Printf("%s(empty array)\n", indent)
			return
		}
		for i, it := range r.items {
			label := fmt.Sprintf("%s%d) ", indent, i+1)
			if it.kind == replyArray {
				fmt.Println(strings.TrimRight(label, " "))
				printReply(it, depth+1)
			} else {
				fmt.Print(label)
				fmt.Println(inlineReply(it))
			}
		}
	default:
		fmt.Printf("%s%s\n", indent, inlineReply(r))
	}
}

// inlineReply renders a scalar reply without a trailing newline, used both
// at top level and for array elements that follow an "N) " label.
func inlineReply(r reply) string {
	switch r.kind {
	case replySimple:
		return r.str
	case replyError:
		return "(error) " + r.str
	case replyInteger:
		return fmt.Sprintf("(integer) %d", r.num)
	case replyBulk:
		if r.isNull {
			return "(nil)"
		}
		return fmt.Sprintf("%q", r.str)
	default:
		return ""
	}
}
