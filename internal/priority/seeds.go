package priority

// tier1Seeds are the symbols swept on every scheduled cycle: US megacaps,
// the major index and sector ETFs the macro bot leans on, the most traded
// UK/EU names and the large-cap crypto pairs.
var tier1Seeds = []string{
	// US megacap tech
	"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA", "META", "TSLA", "AVGO",
	"AMD", "NFLX", "CRM", "ORCL", "ADBE", "INTC", "QCOM", "PLTR",
	// US large-cap financials and payments
	"JPM", "BAC", "GS", "MS", "V", "MA", "BRK-B", "WFC",
	// US healthcare and consumer
	"UNH", "JNJ", "LLY", "PFE", "MRK", "ABBV", "WMT", "COST",
	"PG", "KO", "PEP", "MCD", "NKE", "DIS", "HD",
	// US industrials and energy
	"BA", "CAT", "GE", "XOM", "CVX", "COP",
	// Index and sector ETFs
	"SPY", "QQQ", "IWM", "DIA", "XLK", "XLF", "XLE",
	// UK/EU heavyweights
	"SHEL.L", "AZN.L", "HSBA.L", "ULVR.L", "BP.L", "ASML.AS", "MC.PA", "SAP.DE",
	// Crypto majors
	"BTC-USD", "ETH-USD", "SOL-USD",
}

// tier2Seeds are swept on full cycles: liquid mid/large caps, popular
// growth names, ADRs, commodity futures and secondary FX pairs.
var tier2Seeds = []string{
	// US large caps outside tier 1
	"ABT", "ACN", "AIG", "AMAT", "AMGN", "AXP", "BKNG", "BLK",
	"BMY", "C", "CB", "CI", "CL", "CMCSA", "CSCO", "CVS",
	"DE", "DHR", "DUK", "EMR", "F", "FDX", "GD", "GILD",
	"GM", "HON", "IBM", "ISRG", "KHC", "KMB", "LIN", "LMT",
	"LOW", "MDT", "MMM", "MO", "MU", "NEE", "NOW", "PANW",
	"PM", "PYPL", "RTX", "SBUX", "SCHW", "SO", "SPGI", "T",
	"TGT", "TMO", "TXN", "UBER", "UPS", "USB", "VZ",
	// Popular growth and retail-flow names
	"ABNB", "COIN", "DDOG", "DKNG", "HOOD", "LCID", "MARA", "NET",
	"RBLX", "RIOT", "RIVN", "SHOP", "SNAP", "SNOW", "SOFI", "SQ",
	// Asian ADRs
	"BABA", "BIDU", "JD", "NIO", "PDD", "SONY", "TM", "TSM",
	// UK/EU second line
	"BARC.L", "BATS.L", "DGE.L", "GSK.L", "LLOY.L", "RIO.L", "VOD.L",
	"AIR.PA", "OR.PA", "SIE.DE", "VOW3.DE",
	// Commodities and FX
	"GC=F", "CL=F", "SI=F", "NG=F",
	"EURUSD=X", "GBPUSD=X", "USDJPY=X",
	// Crypto second line
	"ADA-USD", "XRP-USD", "DOGE-USD", "AVAX-USD",
}
