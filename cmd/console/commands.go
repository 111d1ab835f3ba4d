package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/defistate/defistate-dex-go/dex"
	"github.com/defistate/defistate-dex-go/engine"
	"github.com/defistate/defistate-dex-go/protocols/constantproduct"
	"github.com/defistate/defistate-dex-go/protocols/tokenregistry"
	"github.com/defistate/defistate-dex-go/streams/jsonrpc/server"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// --- COMMAND HANDLERS ---

func printStatus(state *engine.State) {
	ts := time.Unix(0, int64(state.Timestamp)).Format("15:04:05")

	fmt.Printf("\n%sSTATUS  ::%s Sequence %s#%d%s | Exchange %s%s%s | Time %s%s%s\n",
		Green, Reset,
		Bold, state.Sequence, Reset,
		Bold, state.Exchange.Hex(), Reset,
		Bold, ts, Reset,
	)

	header("PROTOCOLS")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "PROTOCOL ID\tSCHEMA\tSTATUS\t")
	fmt.Fprintln(w, "-----------\t------\t------\t")
	for id, p := range state.Protocols {
		status := Green + "OK" + Reset
		if p.Error != "" {
			status = Red + "ERROR" + Reset
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", id, p.Schema, status)
	}
	w.Flush()

	fmt.Printf("\n%sTokens: %d | Pools: %d%s\n", Bold, len(tokensOf(state)), len(poolsOf(state)), Reset)
}

func printPools(state *engine.State) {
	pools := poolsOf(state)
	if len(pools) == 0 {
		fmt.Println("\n" + Yellow + "[INFO] No pools yet. Use 'Add Liquidity' to create one." + Reset)
		return
	}

	header("POOLS")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "PAIR\tRESERVE0\tRESERVE1\tPRICE\t")
	fmt.Fprintln(w, "----\t--------\t--------\t-----\t")
	for _, p := range pools {
		fmt.Fprintf(w, "%s/%s\t%s\t%s\t%s\t\n",
			symbolOf(state, p.Token0), symbolOf(state, p.Token1),
			formatAmount(state, p.Token0, p.Reserve0),
			formatAmount(state, p.Token1, p.Reserve1),
			priceLine(state, p, p.Token0),
		)
	}
	w.Flush()
}

func (c *console) poolsForToken(state *engine.State) {
	token, ok := c.readToken(state, "Token (symbol or address): ")
	if !ok {
		return
	}
	pools := poolIndex(state).PoolsForToken(token.Address)
	if len(pools) == 0 {
		fmt.Println(Yellow + "[INFO] No pools hold " + token.Symbol + "." + Reset)
		return
	}

	header("POOLS FOR " + strings.ToUpper(token.Symbol))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "PAIRED TOKEN\tRESERVE\tPAIRED RESERVE\tPRICE\t")
	fmt.Fprintln(w, "------------\t-------\t--------------\t-----\t")
	for _, p := range pools {
		paired, _ := p.Pair().Other(token.Address)
		reserve, pairedReserve := reservesFor(p, token.Address)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n",
			symbolOf(state, paired),
			formatAmount(state, token.Address, reserve),
			formatAmount(state, paired, pairedReserve),
			priceLine(state, p, token.Address),
		)
	}
	w.Flush()
}

func printPoolDetail(state *engine.State, pool constantproduct.Pool) {
	header(fmt.Sprintf("POOL %s/%s", symbolOf(state, pool.Token0), symbolOf(state, pool.Token1)))
	printField := func(key string, value any) {
		fmt.Printf("  %s%-15s%s %v\n", Gray, key+":", Reset, value)
	}
	printField("Key", pool.Key)
	printField("Fee", fmt.Sprintf("%d bps", pool.FeeBps))
	printField("Reserve "+symbolOf(state, pool.Token0), formatAmount(state, pool.Token0, pool.Reserve0))
	printField("Reserve "+symbolOf(state, pool.Token1), formatAmount(state, pool.Token1, pool.Reserve1))
	printField("Total Shares", pool.TotalShares)
	fmt.Println("")
	fmt.Println("  " + Cyan + priceLine(state, pool, pool.Token0) + Reset)
	fmt.Println("  " + Cyan + priceLine(state, pool, pool.Token1) + Reset)
}

func (c *console) showPool(state *engine.State) {
	tokenA, tokenB, ok := c.readPair(state)
	if !ok {
		return
	}
	pool, found := findPool(state, tokenA.Address, tokenB.Address)
	if !found {
		fmt.Println(Red + "[NOT FOUND] No pool for this pair." + Reset)
		return
	}
	printPoolDetail(state, pool)
}

func (c *console) watchPool() {
	tokenA, tokenB, ok := c.readPair(c.state.Get())
	if !ok {
		return
	}

	fmt.Println(Green + "Starting Live Watch... (Press 'Enter' to stop)" + Reset)
	time.Sleep(1 * time.Second)

	stopCh := make(chan struct{})
	go func() {
		c.reader.ReadString('\n')
		close(stopCh)
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var lastSeq uint64
	first := true
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			state := c.state.Get()
			if state == nil || (!first && state.Sequence <= lastSeq) {
				continue
			}
			first = false
			lastSeq = state.Sequence

			fmt.Print("\033[H\033[2J")
			fmt.Printf(Bold+"\n--- LIVE MONITOR (Sequence: %d) ---\n"+Reset, state.Sequence)
			fmt.Println(Gray + "Press ENTER to return to menu." + Reset)

			if pool, found := findPool(state, tokenA.Address, tokenB.Address); found {
				printPoolDetail(state, pool)
			} else {
				fmt.Println(Yellow + "[INFO] Pool not created yet." + Reset)
			}
		}
	}
}

func (c *console) quote(state *engine.State) {
	header("QUOTE")
	tokenIn, amountIn, tokenOut, ok := c.readTrade(state)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, requestTimeout)
	defer cancel()
	out, err := c.dex.Quote(ctx, tokenIn.Address, tokenOut.Address, amountIn)
	if err != nil {
		printError(err)
		return
	}
	c.printQuote(state, tokenIn, amountIn, tokenOut, out)
}

func (c *console) printQuote(state *engine.State, tokenIn tokenregistry.Token, amountIn *big.Int, tokenOut tokenregistry.Token, out *big.Int) {
	fmt.Printf("\n%sExpected Output:%s %s %s\n", Bold, Reset, formatAmount(state, tokenOut.Address, out), tokenOut.Symbol)
	fmt.Printf("%sMinimum Output:%s  %s %s %s(%.2f%% slippage)%s\n", Bold, Reset,
		formatAmount(state, tokenOut.Address, minimumOut(out, c.slippageBps)), tokenOut.Symbol,
		Gray, float64(c.slippageBps)/100, Reset)
	fmt.Printf("%sEffective Price:%s 1 %s = %s %s\n", Bold, Reset, tokenIn.Symbol,
		tokenregistry.Ratio(out, tokenOut.Decimals, amountIn, tokenIn.Decimals, priceDecimals), tokenOut.Symbol)
	if pool, found := findPool(state, tokenIn.Address, tokenOut.Address); found {
		fmt.Printf("%sPool Price:%s      %s\n", Bold, Reset, priceLine(state, pool, tokenIn.Address))
	}
}

func (c *console) swap(state *engine.State) {
	header("SWAP")
	tokenIn, amountIn, tokenOut, ok := c.readTrade(state)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, requestTimeout)
	defer cancel()
	out, err := c.dex.Quote(ctx, tokenIn.Address, tokenOut.Address, amountIn)
	if err != nil {
		printError(err)
		return
	}
	c.printQuote(state, tokenIn, amountIn, tokenOut, out)
	if !c.confirm("Execute swap?") {
		return
	}

	if err := c.ensureAllowance(ctx, tokenIn, amountIn); err != nil {
		printError(err)
		return
	}
	receipt, err := c.dex.Swap(ctx, server.SwapArgs{
		Trader:       c.account,
		TokenIn:      tokenIn.Address,
		TokenOut:     tokenOut.Address,
		AmountIn:     (*hexutil.Big)(amountIn),
		MinAmountOut: (*hexutil.Big)(minimumOut(out, c.slippageBps)),
	})
	if err != nil {
		printError(err)
		return
	}
	fmt.Printf("\n%s[OK]%s Swapped %s %s for %s %s (sequence %d)\n", Green, Reset,
		formatAmount(state, tokenIn.Address, receipt.AmountIn.ToInt()), tokenIn.Symbol,
		formatAmount(state, tokenOut.Address, receipt.AmountOut.ToInt()), tokenOut.Symbol,
		uint64(receipt.Sequence))
}

func (c *console) addLiquidity(state *engine.State) {
	header("ADD LIQUIDITY")
	tokenA, tokenB, ok := c.readPair(state)
	if !ok {
		return
	}

	pool, exists := findPool(state, tokenA.Address, tokenB.Address)
	if exists && !pool.IsEmpty() {
		fmt.Println(Gray + "Current price: " + priceLine(state, pool, tokenA.Address) + Reset)
	} else {
		fmt.Println(Gray + "This deposit sets the pool price." + Reset)
	}

	amountA, ok := c.readAmount(fmt.Sprintf("Amount of %s: ", tokenA.Symbol), tokenA)
	if !ok {
		return
	}
	amountB, ok := c.readAmount(fmt.Sprintf("Amount of %s: ", tokenB.Symbol), tokenB)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, requestTimeout)
	defer cancel()

	if !exists {
		fmt.Println(Gray + "Creating pool..." + Reset)
		if _, err := c.dex.CreatePool(ctx, tokenA.Address, tokenB.Address); err != nil && !errors.Is(err, dex.ErrPoolAlreadyExists) {
			printError(err)
			return
		}
	}
	for _, deposit := range []struct {
		token  tokenregistry.Token
		amount *big.Int
	}{{tokenA, amountA}, {tokenB, amountB}} {
		if err := c.ensureAllowance(ctx, deposit.token, deposit.amount); err != nil {
			printError(err)
			return
		}
	}

	receipt, err := c.dex.AddLiquidity(ctx, server.AddLiquidityArgs{
		Provider: c.account,
		TokenA:   tokenA.Address,
		TokenB:   tokenB.Address,
		AmountA:  (*hexutil.Big)(amountA),
		AmountB:  (*hexutil.Big)(amountB),
	})
	if err != nil {
		printError(err)
		return
	}
	fmt.Printf("\n%s[OK]%s Deposited %s %s + %s %s, minted %s shares (sequence %d)\n", Green, Reset,
		formatAmount(state, tokenA.Address, receipt.AmountA.ToInt()), tokenA.Symbol,
		formatAmount(state, tokenB.Address, receipt.AmountB.ToInt()), tokenB.Symbol,
		receipt.Shares.ToInt(), uint64(receipt.Sequence))
}

func (c *console) removeLiquidity(state *engine.State) {
	header("REMOVE LIQUIDITY")
	tokenA, tokenB, ok := c.readPair(state)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, requestTimeout)
	defer cancel()

	shares, err := c.dex.GetUserLiquidity(ctx, c.account, tokenA.Address, tokenB.Address)
	if err != nil {
		printError(err)
		return
	}
	if shares.Sign() == 0 {
		fmt.Println(Yellow + "[INFO] You have no liquidity in this pool." + Reset)
		return
	}
	fmt.Printf("Your shares: %s\n", shares)

	input := c.prompt("Percentage to withdraw (1-100): ")
	pct, err := strconv.ParseInt(strings.TrimSuffix(input, "%"), 10, 64)
	if err != nil || pct < 1 || pct > 100 {
		fmt.Println(Red + "Enter a whole number between 1 and 100." + Reset)
		return
	}

	receipt, err := c.dex.RemoveLiquidity(ctx, server.RemoveLiquidityArgs{
		Provider: c.account,
		TokenA:   tokenA.Address,
		TokenB:   tokenB.Address,
		Shares:   (*hexutil.Big)(portion(shares, pct)),
	})
	if err != nil {
		printError(err)
		return
	}
	fmt.Printf("\n%s[OK]%s Burned %s shares for %s %s + %s %s (sequence %d)\n", Green, Reset,
		receipt.Shares.ToInt(),
		formatAmount(state, tokenA.Address, receipt.AmountA.ToInt()), tokenA.Symbol,
		formatAmount(state, tokenB.Address, receipt.AmountB.ToInt()), tokenB.Symbol,
		uint64(receipt.Sequence))
}

func (c *console) positions(state *engine.State) {
	ctx, cancel := context.WithTimeout(c.ctx, requestTimeout)
	defer cancel()

	positions, err := c.dex.Positions(ctx, c.account)
	if err != nil {
		printError(err)
		return
	}
	if len(positions) == 0 {
		fmt.Println("\n" + Yellow + "[INFO] No liquidity positions." + Reset)
		return
	}

	header("POSITIONS")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "PAIR\tSHARES\tPOOL %\tVALUE\t")
	fmt.Fprintln(w, "----\t------\t------\t-----\t")
	for _, pos := range positions {
		shares := pos.Shares.ToInt()
		pool, found := poolByKey(state, pos.Pool)
		if !found {
			fmt.Fprintf(w, "%s\t%s\t?\t?\t\n", pos.Pool, shares)
			continue
		}
		amount0, amount1 := shareValue(pool, shares)
		fmt.Fprintf(w, "%s/%s\t%s\t%s\t%s %s + %s %s\t\n",
			symbolOf(state, pool.Token0), symbolOf(state, pool.Token1),
			shares,
			tokenregistry.Ratio(new(big.Int).Mul(shares, big.NewInt(100)), 0, pool.TotalShares, 0, 2),
			formatAmount(state, pool.Token0, amount0), symbolOf(state, pool.Token0),
			formatAmount(state, pool.Token1, amount1), symbolOf(state, pool.Token1),
		)
	}
	w.Flush()
}

func (c *console) balances(state *engine.State) {
	ctx, cancel := context.WithTimeout(c.ctx, requestTimeout)
	defer cancel()

	header("BALANCES")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tBALANCE\tADDRESS\t")
	fmt.Fprintln(w, "------\t-------\t-------\t")
	for _, t := range tokensOf(state) {
		balance, err := c.dex.BalanceOf(ctx, t.Address, c.account)
		if err != nil {
			printError(err)
			return
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", t.Symbol, tokenregistry.FormatUnits(balance, t.Decimals), t.Address.Hex())
	}
	w.Flush()
}

// --- HELPERS ---

// ensureAllowance approves the exchange for amount when the current allowance is short.
func (c *console) ensureAllowance(ctx context.Context, token tokenregistry.Token, amount *big.Int) error {
	exchange := c.state.Get().Exchange
	allowance, err := c.dex.Allowance(ctx, token.Address, c.account, exchange)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) >= 0 {
		return nil
	}
	fmt.Printf(Gray+"Approving %s %s...%s\n", tokenregistry.FormatUnits(amount, token.Decimals), token.Symbol, Reset)
	return c.dex.Approve(ctx, token.Address, c.account, exchange, amount)
}

func (c *console) prompt(label string) string {
	fmt.Print(Bold + label + Reset)
	input, _ := c.reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func (c *console) confirm(label string) bool {
	answer := strings.ToLower(c.prompt(label + " [y/N]: "))
	return answer == "y" || answer == "yes"
}

func (c *console) readToken(state *engine.State, label string) (tokenregistry.Token, bool) {
	token, err := findToken(state, c.prompt(label))
	if err != nil {
		fmt.Println(Red + "[ERROR] " + err.Error() + Reset)
		return tokenregistry.Token{}, false
	}
	return token, true
}

func (c *console) readPair(state *engine.State) (tokenregistry.Token, tokenregistry.Token, bool) {
	tokenA, ok := c.readToken(state, "First token (symbol or address): ")
	if !ok {
		return tokenregistry.Token{}, tokenregistry.Token{}, false
	}
	tokenB, ok := c.readToken(state, "Second token (symbol or address): ")
	if !ok {
		return tokenregistry.Token{}, tokenregistry.Token{}, false
	}
	if tokenA.Address == tokenB.Address {
		fmt.Println(Red + "[ERROR] Pick two different tokens." + Reset)
		return tokenregistry.Token{}, tokenregistry.Token{}, false
	}
	return tokenA, tokenB, true
}

func (c *console) readAmount(label string, token tokenregistry.Token) (*big.Int, bool) {
	amount, err := tokenregistry.ParseUnits(c.prompt(label), token.Decimals)
	if err != nil || amount.Sign() == 0 {
		fmt.Println(Red + "Invalid amount." + Reset)
		return nil, false
	}
	return amount, true
}

func (c *console) readTrade(state *engine.State) (tokenIn tokenregistry.Token, amountIn *big.Int, tokenOut tokenregistry.Token, ok bool) {
	if tokenIn, ok = c.readToken(state, "1. Input token (symbol or address): "); !ok {
		return
	}
	if tokenOut, ok = c.readToken(state, "2. Output token (symbol or address): "); !ok {
		return
	}
	amountIn, ok = c.readAmount(fmt.Sprintf("3. Amount of %s (e.g. 1.5): ", tokenIn.Symbol), tokenIn)
	return
}

// printError names the exchange error kind when there is one.
func printError(err error) {
	if kind := dex.KindOf(err); kind != nil {
		fmt.Printf(Red+"[%s]%s %v\n", dex.KindName(kind), Reset, err)
		return
	}
	fmt.Printf(Red+"[ERROR]%s %v\n", Reset, err)
}
