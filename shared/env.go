package shared

import (
	"fmt"
	"os"
	"strconv"
)

// Version of the relay, stamped into log fields by the binaries.
const Version = "0.2.0"

type GetenvParser[T any] func(raw string) (T, error)

func GetenvString(raw string) (string, error) {
	return raw, nil
}

func GetenvInt(raw string) (int, error) {
	return strconv.Atoi(raw)
}

func GetenvFloat(raw string) (float64, error) {
	return strconv.ParseFloat(raw, 64)
}

func GetenvBool(raw string) (bool, error) {
	return strconv.ParseBool(raw)
}

// Getenv reads key from the environment and parses it with parser. When the
// variable is unset, required decides between ErrMissingEnvVariable and the
// fallback value.
func Getenv[T any](parser GetenvParser[T], key string, required bool, fallback T) (T, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		if required {
			return fallback, fmt.Errorf("%w: %s", ErrMissingEnvVariable, key)
		}
		return fallback, nil
	}
	v, err := parser(raw)
	if err != nil {
		return fallback, fmt.Errorf("parsing %s: %w", key, err)
	}
	return v, nil
}

// MustGetenv is Getenv for callers that treat a bad value as fatal.
func MustGetenv[T any](parser GetenvParser[T], key string, required bool, fallback T) T {
	v, err := Getenv(parser, key, required, fallback)
	if err != nil {
		panic(err)
	}
	return v
}
