// Command ocapengine is a small interactive demo of the permission engine:
// it registers two restricted methods ("echo" and "write"), wires an
// auto-approving approver, and lets you issue requests from a terminal
// prompt to watch the permission lifecycle unfold.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/domaincap/ocap-engine/go/flags"
	"github.com/domaincap/ocap-engine/go/logging"
	"github.com/domaincap/ocap-engine/go/ocap"
)

type opts struct {
	Logging logging.Opts `group:"logging"`
}

func main() {
	var o opts
	flags.MustParse(&o)
	logger, err := logging.NewLogger(&o.Logging)
	if err != nil {
		slog.Default().Error("initializing logging", "error", err)
		os.Exit(1)
	}
	// Wrap the configured handler so every log line emitted while mediating
	// a request picks up the domain/method withLogContext attached to ctx.
	logger = slog.New(logging.NewContextHandler(logger.Handler(), ocap.ContextLogFields))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\ninterrupted")
		cancel()
	}()

	if err := run(ctx, logger); err != nil {
		slog.Default().Error("exiting", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	engine, err := ocap.New(ocap.Config{
		SafeMethods: []string{"ping"},
		RestrictedMethods: map[string]ocap.RestrictedMethod{
			"echo": {
				Description: "echo back whatever you send it",
				Handler:     handleEcho,
			},
			"write": {
				Description: "record a string to the server's in-memory log",
				Handler:     handleWrite,
			},
		},
		MethodPrefix: "wallet_",
		Approve:      autoApprove,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("constructing engine: %w", err)
	}

	engine.Start(ctx)
	defer engine.Close()

	fmt.Println("ocapengine demo — domain is fixed to 'cli'. Commands:")
	fmt.Println("  call <method> [params...]     invoke a safe or restricted method")
	fmt.Println("  request <method> [method...]  request root permission for one or more methods")
	fmt.Println("  exit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "exit":
			return nil
		case "call":
			if len(fields) < 2 {
				fmt.Println("usage: call <method> [params...]")
				continue
			}
			params := make([]any, 0, len(fields)-2)
			for _, p := range fields[2:] {
				params = append(params, p)
			}
			res := engine.Handle(ctx, "cli", &ocap.Request{Method: fields[1], Params: params})
			if res.Error != nil {
				fmt.Printf("error: %s\n", res.Error.Error())
				continue
			}
			fmt.Printf("result: %v\n", res.Result)
		case "request":
			if len(fields) < 2 {
				fmt.Println("usage: request <method> [method...]")
				continue
			}
			options := make(map[string]ocap.PermissionOptions, len(fields)-1)
			for _, method := range fields[1:] {
				options[method] = ocap.PermissionOptions{}
			}
			res := engine.Handle(ctx, "cli", &ocap.Request{
				Method: "wallet_requestPermissions",
				Params: []any{options},
			})
			if res.Error != nil {
				fmt.Printf("error: %s\n", res.Error.Error())
				continue
			}
			fmt.Printf("granted: %v\n", res.Result)
		default:
			fmt.Printf("unknown command %q\n", fields[0])
		}
	}
}

func handleEcho(ctx context.Context, domain string, req *ocap.Request, res *ocap.Response, next ocap.NextFunc, end ocap.EndFunc) {
	res.Result = req.Params
	end()
}

var writeLog []string

func handleWrite(ctx context.Context, domain string, req *ocap.Request, res *ocap.Response, next ocap.NextFunc, end ocap.EndFunc) {
	for _, p := range req.Params {
		writeLog = append(writeLog, fmt.Sprintf("%v", p))
	}
	res.Result = len(writeLog)
	end()
}

// autoApprove grants every requested permission unmodified. A real embedder
// would instead surface the request to a human and wait for their decision.
func autoApprove(ctx context.Context, request ocap.PermissionsRequest) (map[string]ocap.PermissionOptions, error) {
	approved := make(map[string]ocap.PermissionOptions, len(request.Options))
	for method, opts := range request.Options {
		approved[method] = opts
	}
	return approved, nil
}
