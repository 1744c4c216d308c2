// Command jeux-server listens for client connections and runs the jeux
// game service: login, user discovery, invitations, and tic-tac-toe
// games with Elo-style rating updates.
package main

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/mkbarrett/jeux/internal/config"
	"github.com/mkbarrett/jeux/internal/player"
	"github.com/mkbarrett/jeux/internal/registry"
	"github.com/mkbarrett/jeux/internal/service"
)

func main() {
	cfg, err := config.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		printUsage()
		os.Exit(1)
	}
	if !cfg.IsServer {
		fmt.Fprintln(os.Stderr, "Error: jeux-server requires --server")
		printUsage()
		os.Exit(1)
	}

	player.EloK = float64(cfg.EloK)

	addr := fmt.Sprintf(":%d", cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	showServerInfo(cfg.Port)

	clients := registry.NewClientRegistry()
	players := registry.NewPlayerRegistry()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig.String())
		listener.Close()
		clients.ShutdownAll()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-sigCh:
			default:
				slog.Warn("accept failed", "err", err)
			}
			break
		}
		go service.Serve(conn, clients, players)
	}

	clients.Wait()
	slog.Info("all sessions closed, exiting")
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  jeux-server --server [options]    Start a game server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Options:")
	fmt.Fprintln(os.Stderr, "  --port <port>       Listen port (default: 5555)")
	fmt.Fprintln(os.Stderr, "  --points <k>        Elo K-factor for rating updates (default: 32)")
	fmt.Fprintln(os.Stderr, "")
}

func showServerInfo(port int) {
	fmt.Printf("Starting jeux server on port %d\n", port)
	fmt.Println("Players can connect using:")
	fmt.Println("")

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		fmt.Printf("  jeux-client --join localhost:%d --name <you>\n", port)
		return
	}

	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP
		if ip.IsLoopback() || ip.To4() == nil {
			continue
		}
		fmt.Printf("  jeux-client --join %s:%d --name <you>\n", ip.String(), port)
	}

	fmt.Printf("  jeux-client --join localhost:%d --name <you>  (same machine)\n", port)
	fmt.Println("")
	fmt.Println("Press Ctrl+C to stop the server")
	fmt.Println("")
}
