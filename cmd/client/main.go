package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"chordring/internal/client"

	"github.com/peterh/liner"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:4000", "address of a ring node to connect to")
	timeout := flag.Duration("timeout", 5*time.Second, "request timeout (e.g., 5s)")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	mgr := client.New(2*time.Second, 60*time.Second)
	defer mgr.Close()
	api := client.NewClient(mgr)

	currentAddr := *addr
	fmt.Printf("chordring interactive client. Connected to %s\n", currentAddr)
	fmt.Println("Available commands: put/get/delete/getrt/lookup/use/exit")

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt(fmt.Sprintf("chordring[%s]> ", currentAddr))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				fmt.Println("aborted")
				continue
			}
			break
		}
		line.AppendHistory(input)

		args := strings.Fields(strings.TrimSpace(input))
		if len(args) == 0 {
			continue
		}
		cmd := args[0]

		ctx, cancel := context.WithTimeout(context.Background(), *timeout)

		switch cmd {
		case "put":
			if len(args) < 3 {
				fmt.Println("usage: put <key> <value>")
				cancel()
				continue
			}
			key, value := args[1], args[2]
			start := time.Now()
			err := api.Put(ctx, currentAddr, key, []byte(value))
			delay := time.Since(start)
			if err != nil {
				fmt.Printf("put failed (%v) | latency=%s\n", err, delay)
			} else {
				fmt.Printf("put succeeded (key=%s, value=%s) | latency=%s\n", key, value, delay)
			}

		case "get":
			if len(args) < 2 {
				fmt.Println("usage: get <key>")
				cancel()
				continue
			}
			key := args[1]
			start := time.Now()
			val, err := api.Get(ctx, currentAddr, key)
			delay := time.Since(start)
			if err != nil {
				fmt.Printf("get failed: %v | latency=%s\n", err, delay)
			} else {
				fmt.Printf("get succeeded (key=%s, value=%s) | latency=%s\n", key, string(val), delay)
			}

		case "delete":
			if len(args) < 2 {
				fmt.Println("usage: delete <key>")
				cancel()
				continue
			}
			key := args[1]
			start := time.Now()
			err := api.Delete(ctx, currentAddr, key)
			delay := time.Since(start)
			if err != nil {
				fmt.Printf("delete failed: %v | latency=%s\n", err, delay)
			} else {
				fmt.Printf("delete succeeded (key=%s) | latency=%s\n", key, delay)
			}

		case "getrt":
			start := time.Now()
			rt, err := api.RoutingTable(ctx, currentAddr)
			delay := time.Since(start)
			if err != nil {
				fmt.Printf("getrt failed: %v | latency=%s\n", err, delay)
				cancel()
				continue
			}
			fmt.Println("routing table:")
			fmt.Printf("  self: %s (%s)\n", rt.Self.ID.ToHexString(true), rt.Self.Addr)
			if rt.Predecessor != nil {
				fmt.Printf("  predecessor: %s (%s)\n", rt.Predecessor.ID.ToHexString(true), rt.Predecessor.Addr)
			} else {
				fmt.Println("  predecessor: <none>")
			}
			fmt.Println("  successors:")
			for i, s := range rt.Successors {
				if s == nil {
					continue
				}
				fmt.Printf("    [%d] %s (%s)\n", i, s.ID.ToHexString(true), s.Addr)
			}
			fmt.Println("  fingers:")
			for i, f := range rt.Fingers {
				if f == nil {
					continue
				}
				fmt.Printf("    [%d] %s (%s)\n", i, f.ID.ToHexString(true), f.Addr)
			}
			fmt.Printf("latency: %s\n", delay)

		case "lookup":
			if len(args) < 2 {
				fmt.Println("usage: lookup <key>")
				cancel()
				continue
			}
			key := args[1]
			start := time.Now()
			owner, err := api.Lookup(ctx, currentAddr, key)
			delay := time.Since(start)
			if err != nil {
				fmt.Printf("lookup failed: %v | latency=%s\n", err, delay)
			} else {
				fmt.Printf("lookup result: owner=%s (%s) | latency=%s\n",
					owner.ID.ToHexString(true), owner.Addr, delay)
			}

		case "use":
			if len(args) < 2 {
				fmt.Println("usage: use <addr>")
				cancel()
				continue
			}
			currentAddr = args[1]
			fmt.Printf("switched connection to %s\n", currentAddr)

		case "exit", "quit":
			fmt.Println("bye!")
			cancel()
			return

		default:
			fmt.Printf("unknown command: %s\n", cmd)
		}

		cancel()
	}
}
