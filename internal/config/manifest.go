package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// manifestDocument 兼容两种清单写法：纯 YAML 列表，或带 urls 字段的映射。
type manifestDocument struct {
	URLs []string `yaml:"urls"`
}

// LoadManifest 读取构建期生成的预缓存清单（YAML/JSON 均可，JSON 是 YAML 的子集）。
func LoadManifest(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取清单失败: %w", err)
	}

	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return nil, fmt.Errorf("解析清单失败: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, errors.New("清单为空")
	}

	var entries []string
	switch root := node.Content[0]; root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&entries); err != nil {
			return nil, fmt.Errorf("解析清单失败: %w", err)
		}
	case yaml.MappingNode:
		var doc manifestDocument
		if err := root.Decode(&doc); err != nil {
			return nil, fmt.Errorf("解析清单失败: %w", err)
		}
		entries = doc.URLs
	default:
		return nil, fmt.Errorf("清单格式不支持: %s", path)
	}

	result := make([]string, 0, len(entries))
	for _, entry := range entries {
		if trimmed := strings.TrimSpace(entry); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result, nil
}
