// The consumer agent runs one paid inference exchange: it discovers providers
// on the ComputeRegistry, opens a capped payment stream to the cheapest one,
// sends the prompt, closes the stream, and prints a settlement summary.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/clawcompute/clawcompute-go/pkg/agent"
	"github.com/clawcompute/clawcompute-go/pkg/blockchain"
	"github.com/clawcompute/clawcompute-go/pkg/config"
	"github.com/clawcompute/clawcompute-go/pkg/exchange"
)

const defaultPrompt = "Explain in one paragraph how per-second payment streaming can meter compute usage."

func main() {
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		zap.L().Fatal("configuration error", zap.Error(err))
	}

	core := agent.NewAgent(cfg)
	defer core.Close()

	consumer, err := core.NewConsumer()
	if err != nil {
		zap.L().Fatal("consumer init failed", zap.Error(err))
	}

	prompt := defaultPrompt
	if len(os.Args) > 1 {
		prompt = strings.Join(os.Args[1:], " ")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary := consumer.Execute(ctx, prompt)
	printSummary(summary)

	if summary.Phase != exchange.PhaseSettled {
		os.Exit(1)
	}
}

func printSummary(s *exchange.Summary) {
	fmt.Println()
	fmt.Println("=== exchange summary ===")
	fmt.Printf("phase:    %s\n", s.Phase)
	if s.Provider != nil {
		fmt.Printf("provider: id=%s model=%s endpoint=%s\n",
			s.Provider.ID, s.Provider.ModelName, s.Provider.Endpoint)
	}
	if s.StreamID != nil {
		fmt.Printf("stream:   %s", s.StreamID)
		if s.CounterResolved {
			fmt.Printf(" (id from counter fallback, advisory)")
		}
		fmt.Println()
	}
	if s.InferenceFailed {
		fmt.Printf("inference failed: %s\n", s.InferenceErr)
	} else if s.Result != "" {
		fmt.Printf("result (%s):\n%s\n", s.Duration.Round(0), s.Result)
	}
	if s.CloseAlreadyDone {
		fmt.Println("close:    stream was already closed")
	}
	if s.Paid != nil {
		fmt.Printf("paid:     %s BNB\n", blockchain.WeiToBNB(s.Paid))
	}
	if s.Refund != nil {
		fmt.Printf("refund:   %s BNB\n", blockchain.WeiToBNB(s.Refund))
	}
	if s.Spent != nil {
		fmt.Printf("spent:    %s BNB (incl. gas)\n", blockchain.WeiToBNB(s.Spent))
	}
	if s.Err != nil {
		fmt.Printf("error:    %v\n", s.Err)
	}
}
