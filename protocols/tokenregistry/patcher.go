package tokenregistry

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Patcher constructs a new token snapshot by applying a diff to a previous one.
// Existing tokens keep their position; additions are appended in diff order.
func Patcher(prevState []Token, diff TokenSystemDiff) ([]Token, error) {
	deleted := make(map[common.Address]struct{}, len(diff.Deletions))
	for _, address := range diff.Deletions {
		deleted[address] = struct{}{}
	}

	updated := make(map[common.Address]Token, len(diff.Updates))
	for _, token := range diff.Updates {
		updated[token.Address] = token
	}

	finalState := make([]Token, 0, len(prevState)+len(diff.Additions))
	present := make(map[common.Address]struct{}, len(prevState)+len(diff.Additions))
	for _, token := range prevState {
		if _, ok := deleted[token.Address]; ok {
			continue
		}
		if u, ok := updated[token.Address]; ok {
			token = u
			delete(updated, token.Address)
		}
		present[token.Address] = struct{}{}
		finalState = append(finalState, token.Clone())
	}

	for address := range updated {
		return nil, fmt.Errorf("update for unknown token %s", address.Hex())
	}

	for _, token := range diff.Additions {
		if _, ok := present[token.Address]; ok {
			return nil, fmt.Errorf("addition of existing token %s", token.Address.Hex())
		}
		present[token.Address] = struct{}{}
		finalState = append(finalState, token.Clone())
	}

	return finalState, nil
}
