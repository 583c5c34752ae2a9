package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/meridian-erp/meridian/cmd/meridianctl/cli"
	"github.com/meridian-erp/meridian/jobs"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: meridianctl [-redis addr] <command> [args]

commands:
  trigger <job> [arg]   enqueue a job; one of:
                          %s [session-id]
                          %s
                          %s [grace-days]
  queue                 show default queue stats
  scheduled [n]         list up to n scheduled tasks
`, jobs.TaskSessionReclassify, jobs.TaskAgreementExpiry, jobs.TaskPlanSweep)
	os.Exit(2)
}

func main() {
	redisAddr := flag.String("redis", "127.0.0.1:6379", "redis address")
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage()
	}

	jobsCLI, err := cli.NewJobsCLI(*redisAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init:", err)
		os.Exit(1)
	}
	defer jobsCLI.Close()

	ctx := context.Background()
	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			usage()
		}
		arg := ""
		if len(args) > 2 {
			arg = args[2]
		}
		info, err := jobsCLI.Trigger(ctx, args[1], arg)
		if err != nil {
			fmt.Fprintln(os.Stderr, "trigger:", err)
			os.Exit(1)
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "queue":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "queue:", err)
			os.Exit(1)
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	case "scheduled":
		size := 10
		if len(args) > 1 {
			fmt.Sscanf(args[1], "%d", &size)
		}
		tasks, err := jobsCLI.ListScheduled(ctx, size)
		if err != nil {
			fmt.Fprintln(os.Stderr, "scheduled:", err)
			os.Exit(1)
		}
		for _, t := range tasks {
			fmt.Printf("%s id=%s next=%s\n", t.Type, t.ID, t.NextProcessAt.Format("2006-01-02 15:04:05"))
		}
	default:
		usage()
	}
}
