package regmap

import (
	_ "embed"
	"fmt"
)

//go:embed ovum.yaml
var ovumMap []byte

// Default returns the built-in Ovum ACP register map.
// Panics on a broken embedded map: that is a build defect, not a runtime
// condition.
func Default() *Map {
	m, err := Parse(ovumMap)
	if err != nil {
		panic(fmt.Sprintf("regmap: embedded map invalid: %v", err))
	}
	return m
}
