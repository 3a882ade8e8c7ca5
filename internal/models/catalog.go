// internal/models/catalog.go
package models

import (
	_ "embed"
	"fmt"
	"sync"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// CutPack 美术风格预设
type CutPack struct {
	Name      string `json:"name" yaml:"name"`
	Direction string `json:"direction" yaml:"direction"`
}

// LanguageOption 语言选项（仅用于标签查找）
type LanguageOption struct {
	Code string `json:"code" yaml:"code"`
	Name string `json:"name" yaml:"name"`
}

// Catalog 可选的风格、弧线、节奏与语言
type Catalog struct {
	CutPacks  []CutPack        `json:"cut_packs" yaml:"cut_packs"`
	Arcs      []string         `json:"arcs" yaml:"arcs"`
	Paces     []string         `json:"paces" yaml:"paces"`
	Languages []LanguageOption `json:"languages" yaml:"languages"`
}

var (
	catalogOnce sync.Once
	catalog     *Catalog
	catalogErr  error
)

// ParseCatalog 解析YAML格式的目录
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("解析目录失败: %w", err)
	}
	if len(c.CutPacks) == 0 || len(c.Arcs) == 0 || len(c.Paces) == 0 {
		return nil, fmt.Errorf("目录不完整")
	}
	return &c, nil
}

// GetCatalog 返回内置目录（只加载一次）
func GetCatalog() *Catalog {
	catalogOnce.Do(func() {
		catalog, catalogErr = ParseCatalog(catalogYAML)
	})
	if catalogErr != nil {
		panic(catalogErr)
	}
	return catalog
}

// FindCutPack 按名称查找风格预设
func (c *Catalog) FindCutPack(name string) (CutPack, bool) {
	for _, pack := range c.CutPacks {
		if pack.Name == name {
			return pack, true
		}
	}
	return CutPack{}, false
}

// HasArc 是否为已知弧线模板
func (c *Catalog) HasArc(arc string) bool {
	for _, a := range c.Arcs {
		if a == arc {
			return true
		}
	}
	return false
}

// HasPace 是否为已知节奏
func (c *Catalog) HasPace(pace string) bool {
	for _, p := range c.Paces {
		if p == pace {
			return true
		}
	}
	return false
}

// LanguageLabel 返回语言代码对应的显示名称，未知时返回代码本身
func (c *Catalog) LanguageLabel(code string) string {
	for _, lang := range c.Languages {
		if lang.Code == code {
			return lang.Name
		}
	}
	return code
}

// ValidLanguage 检查语言代码是否为合法的BCP 47标签
func ValidLanguage(code string) bool {
	if code == "" {
		return false
	}
	_, err := language.Parse(code)
	return err == nil
}
