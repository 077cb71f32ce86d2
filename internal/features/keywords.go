package features

import "strings"

// keywordAxis is a fixed vocabulary. Single words match whole tokens, phrases match as substrings.
type keywordAxis struct {
	feature string
	words   map[string]struct{}
	phrases []string
}

func newAxis(feature string, terms ...string) keywordAxis {
	axis := keywordAxis{feature: feature, words: make(map[string]struct{})}
	for _, term := range terms {
		if strings.Contains(term, " ") {
			axis.phrases = append(axis.phrases, term)
			continue
		}
		axis.words[term] = struct{}{}
	}
	return axis
}

var (
	cryptoAxis = newAxis("crypto_keyword_count",
		"bitcoin", "btc", "ethereum", "eth", "solana", "sol", "crypto", "blockchain", "defi", "nft", "nfts",
		"token", "tokens", "altcoin", "web3", "wallet", "airdrop", "staking", "gm", "wagmi", "hodl", "dao",
		"l2", "memecoin", "onchain", "degen", "layer 2")
	tradingAxis = newAxis("trading_keyword_count",
		"moon", "pump", "dump", "bullish", "bearish", "long", "short", "ath", "dip", "breakout", "rally",
		"chart", "ape", "entry", "target", "support", "resistance", "leverage", "liquidation", "gains",
		"to the moon", "buy the dip", "all time high")
	technicalAxis = newAxis("technical_keyword_count",
		"protocol", "consensus", "validator", "rollup", "zk", "sharding", "bridge", "oracle", "liquidity",
		"tvl", "yield", "api", "sdk", "mainnet", "testnet", "audit", "smart contract", "zero knowledge")
	positiveAxis = newAxis("sentiment_positive_count",
		"great", "amazing", "love", "bullish", "excited", "huge", "win", "best", "strong", "optimistic", "lfg")
	negativeAxis = newAxis("sentiment_negative_count",
		"bad", "scam", "rug", "bearish", "fear", "worst", "dead", "crash", "weak", "fud", "rekt")

	keywordAxes = []keywordAxis{cryptoAxis, tradingAxis, technicalAxis, positiveAxis, negativeAxis}
)

var tokenReplacer = strings.NewReplacer(
	",", " ", ".", " ", ":", " ", ";", " ", "!", " ", "?", " ",
	"(", " ", ")", " ", "'", " ", "\"", " ", "-", " ", "/", " ",
)

// wordTokens lowercases text and strips punctuation and the $/# sigils.
func wordTokens(text string) []string {
	parts := strings.Fields(strings.ToLower(tokenReplacer.Replace(text)))
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimLeft(p, "$#@")
		if p != "" {
			tokens = append(tokens, p)
		}
	}
	return tokens
}

func (a keywordAxis) count(tokens []string, lowered string) int {
	n := 0
	for _, tok := range tokens {
		if _, ok := a.words[tok]; ok {
			n++
		}
	}
	for _, phrase := range a.phrases {
		n += strings.Count(lowered, phrase)
	}
	return n
}

func keywordFeatures(text string) *Vector {
	v := NewVector()
	tokens := wordTokens(text)
	lowered := strings.ToLower(text)
	for _, axis := range keywordAxes {
		v.Set(axis.feature, float64(axis.count(tokens, lowered)))
	}
	crypto := v.GetOr(cryptoAxis.feature, 0)
	v.Set("crypto_keyword_density", ratio(crypto, float64(len(strings.Fields(text)))))
	return v
}
