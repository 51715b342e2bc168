package config

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// applyFile 读取 YAML 配置文件并覆盖到 cfg 上，凭证类字段只从环境变量读取。
func applyFile(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	if err := decodeYAML(cfg, f); err != nil {
		return fmt.Errorf("config: parse %q: %w", path, err)
	}
	return nil
}

func decodeYAML(cfg *Config, r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return fmt.Errorf("decode yaml: %w", err)
	}
	return nil
}
