// Package config loads service settings from an optional YAML file and the environment.
//
// Environment keys come from an explicit `env:"KEY"` tag or, without one, from the upper-cased
// field path joined by underscores (BILLING_PRECISION). `env:"-"` skips a field. Strings, bools,
// integers, floats, durations ("90s", or plain seconds) and comma separated string slices are
// supported.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultConfigPathEnv = "CONFIG_FILE"

var durationType = reflect.TypeOf(time.Duration(0))

// Validator is implemented by config structs that check themselves after loading.
type Validator interface {
	Validate() error
}

// LoadConfig fills target from the file named by CONFIG_FILE, if set, then from the environment.
func LoadConfig(target interface{}) error {
	return LoadConfigFrom(os.Getenv(defaultConfigPathEnv), target)
}

// LoadConfigFrom is LoadConfig with an explicit file path. An empty path skips the file.
// Values already present in target act as defaults.
func LoadConfigFrom(path string, target interface{}) error {
	if target == nil {
		return errors.New("config: target is nil")
	}
	root := reflect.ValueOf(target)
	if root.Kind() != reflect.Ptr || root.Elem().Kind() != reflect.Struct {
		return errors.New("config: target must be pointer to struct")
	}

	if path = strings.TrimSpace(path); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("config: read file: %w", err)
		}
		if err := yaml.Unmarshal(data, target); err != nil {
			return fmt.Errorf("config: decode yaml: %w", err)
		}
	}

	if err := applyEnv(root.Elem(), ""); err != nil {
		return err
	}

	if v, ok := target.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

func applyEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		value := v.Field(i)
		if !value.CanSet() {
			continue
		}
		if field.Anonymous {
			if err := applyEnv(value, prefix); err != nil {
				return err
			}
			continue
		}

		key, skip := envKey(field, prefix)
		if skip {
			continue
		}
		if value.Kind() == reflect.Struct {
			if err := applyEnv(value, key); err != nil {
				return err
			}
			continue
		}

		raw, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		if err := setValue(value, strings.TrimSpace(raw)); err != nil {
			return fmt.Errorf("config: parse %s: %w", key, err)
		}
	}
	return nil
}

func envKey(field reflect.StructField, prefix string) (string, bool) {
	tag := field.Tag.Get("env")
	if tag == "-" {
		return "", true
	}
	if tag != "" {
		return upper(tag), false
	}
	if prefix == "" {
		return upper(field.Name), false
	}
	return prefix + "_" + upper(field.Name), false
}

func upper(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

func setValue(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		d, err := parseDuration(raw)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", field.Type())
		}
		var items []string
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		field.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}

// parseDuration accepts Go duration syntax or a plain number of seconds.
func parseDuration(raw string) (time.Duration, error) {
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(raw)
}
