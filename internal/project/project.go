// Package project models the identity of an open modding workspace. The
// project root is one half of the connection key used to share language
// servers, so two documents from the same project and language always land
// on the same connection.
package project

import (
	"os"
	"path/filepath"
)

// Kind classifies a workspace by its build/loader ecosystem.
type Kind int

const (
	KindUnknown Kind = iota
	KindForge
	KindNeoForge
	KindFabric
	KindDatapack
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindForge:
		return "forge"
	case KindNeoForge:
		return "neoforge"
	case KindFabric:
		return "fabric"
	case KindDatapack:
		return "datapack"
	default:
		return "unknown"
	}
}

// Project identifies a modding workspace.
type Project struct {
	Name string
	Root string
	Kind Kind
}

// Key returns the stable identity used in connection keys.
func (p Project) Key() string {
	return p.Root
}

// Detect builds a Project for a workspace root, classifying it by the
// marker files the common loaders generate.
func Detect(root string) Project {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		absRoot = root
	}

	p := Project{
		Name: filepath.Base(absRoot),
		Root: absRoot,
		Kind: KindUnknown,
	}

	switch {
	case fileExists(filepath.Join(absRoot, "src", "main", "resources", "META-INF", "neoforge.mods.toml")):
		p.Kind = KindNeoForge
	case fileExists(filepath.Join(absRoot, "src", "main", "resources", "META-INF", "mods.toml")):
		p.Kind = KindForge
	case fileExists(filepath.Join(absRoot, "src", "main", "resources", "fabric.mod.json")):
		p.Kind = KindFabric
	case fileExists(filepath.Join(absRoot, "fabric.mod.json")):
		p.Kind = KindFabric
	case fileExists(filepath.Join(absRoot, "pack.mcmeta")):
		p.Kind = KindDatapack
	case fileExists(filepath.Join(absRoot, "build.gradle")),
		fileExists(filepath.Join(absRoot, "build.gradle.kts")):
		// Gradle project without loader metadata yet; treat as Forge-style
		// mod sources so Java tooling still attaches.
		p.Kind = KindForge
	}

	return p
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
