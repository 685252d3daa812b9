// Command procpoolctl is the CLI that instantiates and drives a pool.
// Grounded on the teacher's internal/cli.BuildCLI/buildRunCommand
// structure, trimmed to the pool's actual surface: no grpc worker-node
// mode, no WAL/snapshot flags.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/propool/procpool/internal/config"
	"github.com/propool/procpool/internal/pool"
	"github.com/propool/procpool/internal/poolmetrics"
	"github.com/propool/procpool/internal/poolrpc"
)

var configFile string

func main() {
	if err := buildRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:     "procpoolctl",
		Short:   "Drive a reusable worker-process pool",
		Version: "1.0.0",
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")
	root.AddCommand(buildRunCommand())
	root.AddCommand(buildSubmitCommand())
	root.AddCommand(buildStatusCommand())
	root.AddCommand(buildResizeCommand())
	return root
}

func buildRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start a pool and serve its control plane until signalled",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPool()
		},
	}
}

func runPool() error {
	logger := slog.Default()

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if len(cfg.Pool.WorkerCommand) == 0 {
		return fmt.Errorf("pool.worker_command must name at least the worker binary")
	}
	command := cfg.Pool.WorkerCommand

	metrics := poolmetrics.NewCollector()

	p, err := pool.New(pool.Config{
		Size: cfg.Pool.Size,
		Command: func() *exec.Cmd {
			c := exec.Command(command[0], command[1:]...)
			c.Stderr = os.Stderr
			return c
		},
		QueueCapacity:        cfg.Pool.QueueCapacity,
		DispatchWriteTimeout: cfg.Pool.DispatchWriteTimeout,
		DeathWindow:          cfg.Pool.DeathWindow,
		TerminateGrace:       cfg.Pool.TerminateGrace,
		Metrics:              metrics,
		Logger:               logger,
	})
	if err != nil {
		return fmt.Errorf("creating pool: %w", err)
	}

	if cfg.Metrics.Enabled {
		go func() {
			if err := poolmetrics.StartServer(cfg.Metrics.Port); err != nil {
				logger.Error("metrics server exited", "error", err)
			}
		}()
	}

	if cfg.RPC.Enabled {
		go func() {
			srv := poolrpc.NewServer(p, logger)
			if err := srv.ListenAndServe(cfg.RPC.Port); err != nil {
				logger.Error("rpc server exited", "error", err)
			}
		}()
	}

	logger.Info("pool started", "size", cfg.Pool.Size)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal, terminating pool")
	if err := p.Terminate(); err != nil {
		return fmt.Errorf("terminating pool: %w", err)
	}
	p.Join()
	logger.Info("pool terminated")
	return nil
}

func buildSubmitCommand() *cobra.Command {
	var rpcAddr, callableRef, argsJSON string
	var timeoutMs int64

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit one task to a running pool's control plane and print its result",
		RunE: func(cmd *cobra.Command, args []string) error {
			return submitTask(rpcAddr, callableRef, argsJSON, timeoutMs)
		},
	}
	cmd.Flags().StringVar(&rpcAddr, "rpc", "http://localhost:8080", "pool control-plane base URL")
	cmd.Flags().StringVar(&callableRef, "callable", "", "registered callable name")
	cmd.Flags().StringVar(&argsJSON, "args", "null", "JSON-encoded arguments")
	cmd.Flags().Int64Var(&timeoutMs, "timeout-ms", 30000, "result wait timeout in milliseconds")
	cmd.MarkFlagRequired("callable")
	return cmd
}

func submitTask(rpcAddr, callableRef, argsJSON string, timeoutMs int64) error {
	req := poolrpc.SubmitRequest{CallableRef: callableRef, Args: json.RawMessage(argsJSON), TimeoutMs: timeoutMs}
	var resp poolrpc.SubmitResponse
	if err := postJSON(rpcAddr+"/submit", req, &resp); err != nil {
		return err
	}
	out, _ := json.MarshalIndent(resp, "", "  ")
	fmt.Println(string(out))
	return nil
}

func buildStatusCommand() *cobra.Command {
	var rpcAddr string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a running pool's status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp poolrpc.StatusResponse
			if err := getJSON(rpcAddr+"/status", &resp); err != nil {
				return err
			}
			out, _ := json.MarshalIndent(resp, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&rpcAddr, "rpc", "http://localhost:8080", "pool control-plane base URL")
	return cmd
}

func buildResizeCommand() *cobra.Command {
	var rpcAddr string
	var size int
	cmd := &cobra.Command{
		Use:   "resize",
		Short: "Resize a running pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			return postJSON(rpcAddr+"/resize", poolrpc.ResizeRequest{Size: size}, nil)
		},
	}
	cmd.Flags().StringVar(&rpcAddr, "rpc", "http://localhost:8080", "pool control-plane base URL")
	cmd.Flags().IntVar(&size, "size", 0, "new worker count")
	cmd.MarkFlagRequired("size")
	return cmd
}

func postJSON(url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Second)
	defer cancel()
	return doJSON(ctx, "POST", url, data, out)
}

func getJSON(url string, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return doJSON(ctx, "GET", url, nil, out)
}
