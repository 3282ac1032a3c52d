package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// loadFromEnv overrides config fields from GAMIFYD_* environment variables,
// following `env` struct tags recursively.
func loadFromEnv(cfg *Config) error {
	return loadFromEnvRecursive(cfg, envPrefix)
}

func loadFromEnvRecursive(v interface{}, prefix string) error {
	val := reflect.ValueOf(v)
	if val.Kind() != reflect.Ptr {
		return fmt.Errorf("expected pointer, got %s", val.Kind())
	}
	val = val.Elem()
	if val.Kind() != reflect.Struct {
		return fmt.Errorf("expected struct, got %s", val.Kind())
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		// nested sections carry their own env tags
		if field.Kind() == reflect.Struct && fieldType.Type != reflect.TypeOf(time.Duration(0)) {
			if field.CanAddr() {
				if err := loadFromEnvRecursive(field.Addr().Interface(), prefix); err != nil {
					return err
				}
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}
		envVar := prefix + "_" + envTag
		envValue := os.Getenv(envVar)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, fieldType, envValue); err != nil {
			return fmt.Errorf("failed to set field %s from env var %s: %w", fieldType.Name, envVar, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, fieldType reflect.StructField, value string) error {
	if !field.CanSet() {
		return fmt.Errorf("field %s is not settable", fieldType.Name)
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Bool:
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value: %s", value)
		}
		field.SetBool(boolVal)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if fieldType.Type == reflect.TypeOf(time.Duration(0)) {
			duration, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration value: %s", value)
			}
			field.SetInt(int64(duration))
		} else {
			intVal, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %s", value)
			}
			field.SetInt(intVal)
		}

	case reflect.Float32, reflect.Float64:
		floatVal, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float value: %s", value)
		}
		field.SetFloat(floatVal)

	case reflect.Slice:
		if fieldType.Type.Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", fieldType.Type.Elem().Kind())
		}
		// comma-separated
		parts := strings.Split(value, ",")
		slice := reflect.MakeSlice(fieldType.Type, len(parts), len(parts))
		for i, part := range parts {
			slice.Index(i).SetString(strings.TrimSpace(part))
		}
		field.Set(slice)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
	return nil
}
