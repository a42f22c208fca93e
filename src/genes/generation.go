package genes

import (
	"fmt"
	"sort"
	"strings"
)

// GenerationPolicy derives the generation of a kitten from its parents' generations.
// Every policy returns a generation above both parents.
type GenerationPolicy func(dadGen, mumGen uint64) uint64

const (
	// PolicyMaxPlusOne names MaxPlusOne
	PolicyMaxPlusOne = "max_plus_one"
	// PolicySumPlusOne names SumPlusOne
	PolicySumPlusOne = "sum_plus_one"
)

var policies = map[string]GenerationPolicy{
	PolicyMaxPlusOne: MaxPlusOne,
	PolicySumPlusOne: SumPlusOne,
}

// MaxPlusOne puts the kitten one generation after its youngest parent
func MaxPlusOne(dadGen, mumGen uint64) uint64 {
	if dadGen > mumGen {
		return dadGen + 1
	}
	return mumGen + 1
}

// SumPlusOne adds both parents' generations, so inbred lines age quickly
func SumPlusOne(dadGen, mumGen uint64) uint64 {
	return dadGen + mumGen + 1
}

// PolicyByName returns the generation policy registered under name
func PolicyByName(name string) (GenerationPolicy, error) {
	p, ok := policies[name]
	if !ok {
		return nil, fmt.Errorf("unknown generation policy %q, expected one of %s", name, strings.Join(PolicyNames(), ", "))
	}
	return p, nil
}

// PolicyNames lists the registered policy names in sorted order
func PolicyNames() []string {
	names := make([]string, 0, len(policies))
	for name := range policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
