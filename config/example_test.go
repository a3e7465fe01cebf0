package config_test

import (
	"fmt"
	"strings"

	"github.com/cwbudde/algo-spatial/config"
)

func ExampleLoadFromReader() {
	cfg, err := config.LoadFromReader(strings.NewReader(`
frame: {channels: 1, length: 256, sample_rate: 48000}
`))
	if err != nil {
		panic(err)
	}

	fmt.Println(cfg.Dataset)
	fmt.Println(cfg.Shape().Channels, cfg.Shape().Length)
	fmt.Println(cfg.Budget())

	// Output:
	// synthetic
	// 1 256
	// 10ms
}
