package protocolv1

import (
	"fmt"

	"github.com/buildconf/server/evaluator"
	"github.com/buildconf/server/protocol"
)

// codemodelFileGroup mirrors the original's nested project-tree detail
// (SPEC_FULL MODULE ADDITIONS "codemodel project tree detail").
type codemodelFileGroup struct {
	Language     string                `json:"language"`
	CompileFlags string                `json:"compileFlags"`
	IncludePath  []codemodelIncludeDir `json:"includePath"`
	Defines      []string              `json:"defines"`
	Sources      []string              `json:"sources"`
}

type codemodelIncludeDir struct {
	Path     string `json:"path"`
	IsSystem bool   `json:"isSystem"`
}

type codemodelTarget struct {
	Name              string                `json:"name"`
	Type              string                `json:"type"`
	FullName          string                `json:"fullName"`
	Artifacts         []string              `json:"artifacts"`
	LinkLibraries     []string              `json:"linkLibraries,omitempty"`
	LinkFlags         string                `json:"linkFlags,omitempty"`
	LinkLanguageFlags string                `json:"linkLanguageFlags,omitempty"`
	LinkPath          []string              `json:"linkPath,omitempty"`
	FrameworkPath     []string              `json:"frameworkPath,omitempty"`
	Sysroot           string                `json:"sysroot,omitempty"`
	FileGroups        []codemodelFileGroup  `json:"fileGroups"`
}

type codemodelProject struct {
	Name            string             `json:"name"`
	SourceDirectory string             `json:"sourceDirectory"`
	BuildDirectory  string             `json:"buildDirectory"`
	Targets         []codemodelTarget  `json:"targets"`
}

func (p *Protocol) handleCodemodel(req *protocol.Request) *protocol.Response {
	state, _, _, _, _, eval := p.snapshotState()
	if state < stateComputed {
		return respondError(req, "This project was not computed yet.")
	}

	projects := eval.Generator().ProjectMap()
	wireProjects := make([]codemodelProject, 0, len(projects))
	for _, proj := range projects {
		wireProjects = append(wireProjects, toWireProject(proj))
	}

	resp := protocol.NewResponse(req)
	resp.SetData(map[string]any{
		"configurations": []map[string]any{
			{"name": "", "projects": wireProjects},
		},
	})
	return resp
}

func toWireProject(proj *evaluator.Project) codemodelProject {
	wire := codemodelProject{
		Name:            proj.Name,
		SourceDirectory: proj.SourceDir,
		BuildDirectory:  proj.BuildDir,
		Targets:         make([]codemodelTarget, 0, len(proj.Targets)),
	}
	for _, t := range proj.Targets {
		wire.Targets = append(wire.Targets, toWireTarget(t))
	}
	return wire
}

func toWireTarget(t *evaluator.Target) codemodelTarget {
	groups := make([]codemodelFileGroup, 0, len(t.FileGroups))
	for _, g := range t.FileGroups {
		includes := make([]codemodelIncludeDir, 0, len(g.IncludePath))
		for _, inc := range g.IncludePath {
			includes = append(includes, codemodelIncludeDir{Path: inc.Path, IsSystem: inc.IsSystem})
		}
		groups = append(groups, codemodelFileGroup{
			Language:     g.Language,
			CompileFlags: g.CompileFlags,
			IncludePath:  includes,
			Defines:      g.Defines,
			Sources:      g.Sources,
		})
	}
	return codemodelTarget{
		Name:              t.Name,
		Type:              t.Type,
		FullName:          t.FullName,
		Artifacts:         t.Artifacts,
		LinkLibraries:     t.LinkLibraries,
		LinkFlags:         t.LinkFlags,
		LinkLanguageFlags: t.LinkLanguageFlags,
		LinkPath:          t.LinkPath,
		FrameworkPath:     t.FrameworkPath,
		Sysroot:           t.Sysroot,
		FileGroups:        groups,
	}
}

// cmakeInputsBucket groups source files the way cmakeInputs does: CMake's
// own list files, temporary-generated files, and the project's own
// (SPEC_FULL MODULE ADDITIONS "cmakeInputs grouping").
type cmakeInputsBucket struct {
	IsCMake     bool     `json:"isCMake"`
	IsTemporary bool     `json:"isTemporary"`
	Sources     []string `json:"sources"`
}

func (p *Protocol) handleCmakeInputs(req *protocol.Request) *protocol.Response {
	state, sourceDir, buildDir, _, _, eval := p.snapshotState()
	if state < stateComputed {
		return respondError(req, "This project was not computed yet.")
	}

	projectFiles, temporaryFiles, cmakeFiles := eval.CMakeInputs()

	var buckets []cmakeInputsBucket
	if len(cmakeFiles) > 0 {
		buckets = append(buckets, cmakeInputsBucket{IsCMake: true, IsTemporary: false, Sources: cmakeFiles})
	}
	if len(temporaryFiles) > 0 {
		buckets = append(buckets, cmakeInputsBucket{IsCMake: false, IsTemporary: true, Sources: temporaryFiles})
	}
	if len(projectFiles) > 0 || len(buckets) == 0 {
		buckets = append(buckets, cmakeInputsBucket{IsCMake: false, IsTemporary: false, Sources: projectFiles})
	}

	resp := protocol.NewResponse(req)
	resp.SetData(map[string]any{
		"cmakeRootDirectory": sourceDir,
		"sourceDirectory":    sourceDir,
		"buildDirectory":     buildDir,
		"buildFiles":         buckets,
	})
	return resp
}

type cachePayload struct {
	Key []string `json:"key"`
}

func (p *Protocol) handleCache(req *protocol.Request) *protocol.Response {
	state, _, _, _, _, eval := p.snapshotState()
	if state < stateComputed {
		return respondError(req, "This project was not computed yet.")
	}

	var payload cachePayload
	if err := req.DataAs(&payload); err != nil {
		return respondError(req, fmt.Sprintf("Invalid cache request: %v", err))
	}

	cache := eval.Cache()
	var wanted map[string]bool
	if len(payload.Key) > 0 {
		wanted = make(map[string]bool, len(payload.Key))
		for _, k := range payload.Key {
			wanted[k] = true
		}
	}

	entries := make([]map[string]any, 0, len(cache.Entries))
	for _, e := range cache.Entries {
		if wanted != nil && !wanted[e.Key] {
			continue
		}
		entries = append(entries, map[string]any{
			"key":        e.Key,
			"type":       e.Type.String(),
			"value":      e.Value,
			"properties": e.Properties,
		})
	}

	resp := protocol.NewResponse(req)
	resp.SetData(map[string]any{"cache": entries})
	return resp
}
