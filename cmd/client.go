package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"erevent/internal/client"
	"erevent/internal/config"
)

func newClientCmd() *cobra.Command {
	var (
		name      string
		downloads string
	)

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Run a device agent with an interactive prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			agent := client.NewAgent(name, downloads, true)
			if err := agent.Start(ctx); err != nil {
				return err
			}

			fmt.Printf("erevent client — registered as %q (%s)\n", name, agent.ID())
			fmt.Printf("received files land in %s\n\n", downloads)
			go prompt(ctx, agent)

			<-ctx.Done()
			fmt.Println("\nshutting down")
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", config.DeviceName(), "device display name")
	cmd.Flags().StringVar(&downloads, "downloads", config.DownloadDir(), "destination folder for received files")
	return cmd
}

func printHelp() {
	fmt.Println("Available commands:")
	fmt.Println("  devices                    - List devices known to the coordinator.")
	fmt.Println("  send <device-id> <file>    - Send a file to a device.")
	fmt.Println("  status <transfer-id>       - Show a transfer's status.")
	fmt.Println("  quit                       - Exit the program.")
	fmt.Println("  help                       - Show this help message.")
}

func prompt(ctx context.Context, agent *client.Agent) {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("erevent > ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		processCommand(ctx, agent, input)
	}
}

func processCommand(ctx context.Context, agent *client.Agent, input string) {
	args := strings.Fields(input)

	switch args[0] {
	case "devices":
		devices, err := agent.Devices(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return
		}
		if len(devices) == 0 {
			fmt.Println("no other devices registered")
			return
		}
		for id, dev := range devices {
			fmt.Printf("  %-36s  %-20s  %-8s  %s\n", id, dev.Name, dev.Status, dev.IP)
		}

	case "send":
		if len(args) != 3 {
			fmt.Println("Usage: send <device-id> <file>")
			return
		}
		transferID, err := agent.SendFile(ctx, args[1], args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return
		}
		fmt.Printf("transfer started: %s\n", transferID)

	case "status":
		if len(args) != 2 {
			fmt.Println("Usage: status <transfer-id>")
			return
		}
		task, err := agent.Status(ctx, args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return
		}
		fmt.Printf("  %s -> %s  %s (%d bytes)  status=%s", task.FromDevice, task.ToDevice,
			task.File.Filename, task.File.Size, task.Status)
		if task.Reason != "" {
			fmt.Printf("  reason=%s", task.Reason)
		}
		fmt.Println()

	case "quit", "exit":
		fmt.Println("bye")
		os.Exit(0)

	case "help":
		printHelp()

	default:
		fmt.Println("Unknown command. Type 'help' for a list of commands.")
	}
}
