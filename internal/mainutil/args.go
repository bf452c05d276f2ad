package mainutil

import (
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
	"github.com/mattn/go-shellwords"
	"github.com/shopspring/decimal"
	flag "github.com/spf13/pflag"
)

// ParseArgs parses the command line followed by any arguments piped on
// stdin and returns the positional arguments of the command line.
func ParseArgs(flags *flag.FlagSet) (argv []string, err error) {
	var argx []string
	if input, err := ReadAllStdin(); err == nil && len(input) > 0 {
		parser := shellwords.NewParser()
		parser.ParseEnv = true
		words, err := parser.Parse(b2s(input))
		if err != nil {
			return nil, err
		}
		argx = words
	} else if err != nil {
		return nil, err
	}
	if err := flags.Parse(os.Args[1:]); err != nil {
		return nil, err
	}
	argv = append([]string{}, flags.Args()...)
	return argv, flags.Parse(append(os.Args[1:], argx...))
}

func ParseAddress(name, s string) (solana.PublicKey, error) {
	if s == "" {
		return solana.PublicKey{}, fmt.Errorf("%s?", name)
	}
	pk, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%s %s: %w", name, s, err)
	}
	return pk, nil
}

// ParseQuantity parses a positive decimal.
func ParseQuantity(name, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s %s: %w", name, s, err)
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%s %s <= 0?", name, s)
	}
	return d, nil
}
