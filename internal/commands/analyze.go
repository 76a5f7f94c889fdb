package commands

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bobmcallan/screener/internal/models"
)

var (
	perfReq  = models.PerformanceRequest{TopN: models.DefaultTopN}
	perfFast bool

	fluctReq  = models.DefaultFluctuationRequest()
	fluctFast bool

	compareReq     models.CompareRequest
	compareTickers string
)

// performanceCmd runs one performance analysis
var performanceCmd = &cobra.Command{
	Use:   "performance",
	Short: "Rank a market's best and worst performers",
	Example: `  screener performance --market NASDAQ --start 2024-01-01 --end 2024-03-31 --top 10
  screener performance --market KOSPI --start 2024-01-01 --end 2024-01-31 --fast`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		analyze := a.PerformanceService.AnalyzePerformance
		if perfFast {
			analyze = a.PerformanceService.AnalyzePerformanceFast
		}
		res, err := analyze(ctx, perfReq)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

// fluctuationCmd runs one fluctuation scan
var fluctuationCmd = &cobra.Command{
	Use:   "fluctuation",
	Short: "Find decline-then-rebound episodes across a market",
	Example: `  screener fluctuation --country KR --market KOSDAQ --start 2024-01-01 --end 2024-06-30
  screener fluctuation --country US --market NASDAQ --start 2024-01-01 --end 2024-06-30 --decline-rate -30 --rebound-rate 25`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		find := a.FluctuationService.FindFluctuations
		if fluctFast {
			find = a.FluctuationService.FindFluctuationsFast
		}
		res, err := find(ctx, fluctReq)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

// compareCmd compares cumulative returns
var compareCmd = &cobra.Command{
	Use:     "compare",
	Short:   "Compare the cumulative returns of up to 10 stocks",
	Example: `  screener compare --tickers 005930,AAPL,MSFT --start 2024-01-01 --end 2024-03-31`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		compareReq.Tickers = splitList(compareTickers)
		res, err := a.PerformanceService.CompareStocks(ctx, compareReq)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func init() {
	rootCmd.AddCommand(performanceCmd, fluctuationCmd, compareCmd)

	pf := performanceCmd.Flags()
	pf.StringVarP(&perfReq.Market, "market", "m", "", "market (KOSPI, KOSDAQ, NASDAQ, NYSE, S&P500)")
	pf.StringVar(&perfReq.StartDate, "start", "", "start date YYYY-MM-DD")
	pf.StringVar(&perfReq.EndDate, "end", "", "end date YYYY-MM-DD")
	pf.IntVarP(&perfReq.TopN, "top", "n", models.DefaultTopN, "number of top and bottom performers")
	pf.BoolVar(&perfFast, "fast", false, "use the fast screening limits")
	performanceCmd.MarkFlagRequired("market")
	performanceCmd.MarkFlagRequired("start")
	performanceCmd.MarkFlagRequired("end")

	ff := fluctuationCmd.Flags()
	ff.StringVar(&fluctReq.Country, "country", "", "country (KR or US)")
	ff.StringVarP(&fluctReq.Market, "market", "m", "", "market of the country")
	ff.StringVar(&fluctReq.StartDate, "start", "", "start date YYYY-MM-DD")
	ff.StringVar(&fluctReq.EndDate, "end", "", "end date YYYY-MM-DD")
	ff.IntVar(&fluctReq.DeclinePeriod, "decline-period", fluctReq.DeclinePeriod, "trading days looked back for the decline")
	ff.Float64Var(&fluctReq.DeclineRate, "decline-rate", fluctReq.DeclineRate, "decline threshold in percent (negative)")
	ff.IntVar(&fluctReq.ReboundPeriod, "rebound-period", fluctReq.ReboundPeriod, "calendar days looked forward for the rebound")
	ff.Float64Var(&fluctReq.ReboundRate, "rebound-rate", fluctReq.ReboundRate, "rebound threshold in percent")
	ff.BoolVar(&fluctFast, "fast", false, "use the fast screening limits")
	fluctuationCmd.MarkFlagRequired("country")
	fluctuationCmd.MarkFlagRequired("market")
	fluctuationCmd.MarkFlagRequired("start")
	fluctuationCmd.MarkFlagRequired("end")

	cf := compareCmd.Flags()
	cf.StringVarP(&compareTickers, "tickers", "t", "", "comma-separated tickers")
	cf.StringVar(&compareReq.StartDate, "start", "", "start date YYYY-MM-DD")
	cf.StringVar(&compareReq.EndDate, "end", "", "end date YYYY-MM-DD")
	compareCmd.MarkFlagRequired("tickers")
	compareCmd.MarkFlagRequired("start")
	compareCmd.MarkFlagRequired("end")
}
