package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/defistate/defistate-dex-go/config"
	"github.com/defistate/defistate-dex-go/engine"
	"github.com/defistate/defistate-dex-go/logging"
	"github.com/defistate/defistate-dex-go/streams/jsonrpc/client"
	"github.com/defistate/defistate-dex-go/streams/jsonrpc/stateops"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
)

// --- VISUAL CONSTANTS ---
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Cyan   = "\033[36m"
	Gray   = "\033[37m"

	DefaultClientStateBufferSize = 100
	requestTimeout               = 10 * time.Second
)

// header prints a styled section header
func header(title string) {
	fmt.Println("\n" + Bold + Cyan + ":: " + title + " ::" + Reset)
}

// SafeState is a thread-safe container for the latest exchange state.
type SafeState struct {
	mu    sync.RWMutex
	state *engine.State
}

func (s *SafeState) Update(newState *engine.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = newState
}

func (s *SafeState) Get() *engine.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// console carries what every command needs.
type console struct {
	ctx         context.Context
	state       *SafeState
	dex         *client.DexClient
	account     common.Address
	slippageBps uint16
	reader      *bufio.Reader
}

func main() {
	configPath := flag.String("config", "console.yaml", "Path to the configuration file.")
	flag.Parse()

	cfg, err := config.LoadConsoleConfig(*configPath)
	if err != nil {
		fmt.Println(Red + "Failed to load configuration: " + err.Error() + Reset)
		os.Exit(1)
	}

	// --- 1. SETUP LOGGING (To File) ---
	zapLogger, err := logging.NewFile("info", cfg.LogFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to open log file: %v", err))
	}
	defer zapLogger.Sync()
	rootLogger := logging.Adapt(zapLogger)

	closeApp := func() {
		_ = zapLogger.Sync()
		fmt.Println("\n" + Red + "Fatal error occurred. Check " + cfg.LogFile + " for details." + Reset)
		os.Exit(1)
	}

	if !common.IsHexAddress(cfg.Account) {
		rootLogger.Error("Invalid account", "account", cfg.Account)
		closeApp()
	}

	// --- 2. CONTEXT ---
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 3. INITIALIZE OPS & CLIENTS ---
	ops, err := stateops.NewStateOps(rootLogger.With("component", "state-ops"), prometheus.DefaultRegisterer)
	if err != nil {
		rootLogger.Error("Failed to initialize State Ops", "error", err)
		closeApp()
	}

	stream, err := client.NewClient(
		ctx,
		client.Config{
			URL:              cfg.ServerURL,
			Logger:           rootLogger.With("component", "jsonrpc-client"),
			BufferSize:       DefaultClientStateBufferSize,
			StatePatcher:     ops.Patch,
			StateDecoder:     ops.DecodeStateJSON,
			StateDiffDecoder: ops.DecodeStateDiffJSON,
		},
	)
	if err != nil {
		rootLogger.Error("Failed to initialize Client", "url", cfg.ServerURL, "error", err)
		closeApp()
	}

	dexClient, err := client.Dial(ctx, cfg.ServerURL)
	if err != nil {
		rootLogger.Error("Failed to dial exchange", "url", cfg.ServerURL, "error", err)
		closeApp()
	}
	defer dexClient.Close()

	// --- 4. START CONSOLE & STATE LOOP ---
	c := &console{
		ctx:         ctx,
		state:       &SafeState{},
		dex:         dexClient,
		account:     common.HexToAddress(cfg.Account),
		slippageBps: cfg.SlippageBps,
		reader:      bufio.NewReader(os.Stdin),
	}

	fmt.Println(Green + "Starting DEX Console..." + Reset)
	fmt.Println("Logs are being written to '" + cfg.LogFile + "'")
	go c.run()

	for {
		select {
		case n := <-stream.State():
			c.state.Update(n)

		case err := <-stream.Err():
			rootLogger.Error("Fatal client error", "error", err)
			closeApp()

		case <-ctx.Done():
			fmt.Println("\n" + Yellow + "Shutting down..." + Reset)
			return
		}
	}
}

// run handles user input and display.
func (c *console) run() {
	time.Sleep(500 * time.Millisecond)

	for {
		if c.ctx.Err() != nil {
			return
		}

		printMenu(c.account)

		fmt.Print(Bold + "Enter selection: " + Reset)
		input, err := c.reader.ReadString('\n')
		if err != nil {
			fmt.Println("Error reading input:", err)
			continue
		}

		c.handleCommand(strings.TrimSpace(input))

		fmt.Println("\n" + Gray + "[Press Enter to continue]" + Reset)
		c.reader.ReadString('\n')
	}
}

func printMenu(account common.Address) {
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(Bold + "DEX CONSOLE" + Reset + Gray + " | " + account.Hex() + Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %s1.%s Exchange Status\n", Cyan, Reset)
	fmt.Printf(" %s2.%s Pools      %s(All pools)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s3.%s Pool       %s(by Token Pair)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %st.%s Pools      %s(by Token)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s4.%s Watch Pool %s(Live Monitor)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s5.%s Quote\n", Cyan, Reset)
	fmt.Printf(" %s6.%s Swap\n", Cyan, Reset)
	fmt.Printf(" %s7.%s Add Liquidity\n", Cyan, Reset)
	fmt.Printf(" %s8.%s Remove Liquidity\n", Cyan, Reset)
	fmt.Printf(" %s9.%s My Positions\n", Cyan, Reset)
	fmt.Printf(" %s0.%s My Balances\n", Cyan, Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %sh.%s Help\n", Yellow, Reset)
	fmt.Printf(" %sq.%s Quit\n", Red, Reset)
	fmt.Println("")
}

func (c *console) handleCommand(input string) {
	state := c.state.Get()

	// Allow help and quit even if state isn't ready
	if state == nil && input != "q" && input != "h" {
		fmt.Println("\n" + Yellow + "[INFO] Waiting for first state update... (Check connection/logs)" + Reset)
		return
	}

	switch input {
	case "1":
		printStatus(state)
	case "2":
		printPools(state)
	case "3":
		c.showPool(state)
	case "t":
		c.poolsForToken(state)
	case "4":
		c.watchPool()
	case "5":
		c.quote(state)
	case "6":
		c.swap(state)
	case "7":
		c.addLiquidity(state)
	case "8":
		c.removeLiquidity(state)
	case "9":
		c.positions(state)
	case "0":
		c.balances(state)
	case "h":
		printHelp()
	case "q":
		exitConsole()
	default:
		fmt.Println(Red + "Unknown command." + Reset)
	}
}

func printHelp() {
	fmt.Print("\033[H\033[2J")

	header("CONSTANT PRODUCT EXCHANGE")
	fmt.Println("Every pool holds two tokens and keeps " + Cyan + "reserve0 * reserve1" + Reset + " from falling.")
	fmt.Println("")
	fmt.Println(Bold + "SWAPS" + Reset)
	fmt.Println("   A 0.3% fee is taken from the input; the rest moves the price along the curve.")
	fmt.Println("   Swaps use the quoted output minus your slippage tolerance as the minimum.")
	fmt.Println("")
	fmt.Println(Bold + "LIQUIDITY" + Reset)
	fmt.Println("   The first deposit sets the price and mints sqrt(a0 * a1) shares.")
	fmt.Println("   Later deposits mint shares in proportion to the smaller side.")
	fmt.Println("   Withdrawals return your share of both reserves.")
	fmt.Println("")
	fmt.Println(Gray + "Tokens are entered by symbol (e.g. TKA) or address." + Reset)
}

func exitConsole() {
	fmt.Println(Yellow + "Exiting..." + Reset)
	os.Exit(0)
}
