package tokenregistry

import "github.com/ethereum/go-ethereum/common"

type TokenSystemDiff struct {
	Additions []Token          `json:"additions,omitempty"`
	Updates   []Token          `json:"updates,omitempty"`
	Deletions []common.Address `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d TokenSystemDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

// Differ calculates the difference between two states of the token system.
// Tokens are matched by address.
func Differ(old, new []Token) TokenSystemDiff {
	oldTokensMap := make(map[common.Address]Token, len(old))
	for _, token := range old {
		oldTokensMap[token.Address] = token
	}

	var additions []Token
	var updates []Token
	var deletions []common.Address

	seen := make(map[common.Address]struct{}, len(new))
	for _, newToken := range new {
		seen[newToken.Address] = struct{}{}

		oldToken, exists := oldTokensMap[newToken.Address]
		if !exists {
			additions = append(additions, newToken)
			continue
		}
		// supply moves on mint; metadata is fixed after deployment but checked anyway
		if !sameSupply(oldToken, newToken) ||
			oldToken.Name != newToken.Name ||
			oldToken.Symbol != newToken.Symbol ||
			oldToken.Decimals != newToken.Decimals {
			updates = append(updates, newToken)
		}
	}

	for _, token := range old {
		if _, exists := seen[token.Address]; !exists {
			deletions = append(deletions, token.Address)
		}
	}

	return TokenSystemDiff{
		Additions: additions,
		Updates:   updates,
		Deletions: deletions,
	}
}

func sameSupply(a, b Token) bool {
	if a.TotalSupply == nil || b.TotalSupply == nil {
		return a.TotalSupply == b.TotalSupply
	}
	return a.TotalSupply.Cmp(b.TotalSupply) == 0
}
