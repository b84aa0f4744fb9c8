package installer

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/italolelis/mocap_installer/internal/archive"
	"github.com/italolelis/mocap_installer/internal/source"
	"gopkg.in/yaml.v3"
)

var ErrUnknownPipeline = errors.New("unknown pipeline")

// Manifest lists every installable pipeline keyed by name.
type Manifest struct {
	Pipelines map[string]*Pipeline `yaml:"pipelines"`
}

// Pipeline is one mocap pipeline: its setup commands and the assets it needs.
type Pipeline struct {
	Name      string         `yaml:"-"`
	// Root is the pipeline directory, relative to the install root.
	Root      string         `yaml:"root"`
	Steps     []StepSpec     `yaml:"steps"`
	Artifacts []ArtifactSpec `yaml:"artifacts"`
}

type StepSpec struct {
	Name    string   `yaml:"name"`
	Command []string `yaml:"command"`
	Dir     string   `yaml:"dir"`
	Env     []string `yaml:"env"`
}

type ArtifactSpec struct {
	Name         string       `yaml:"name"`
	Filename     string       `yaml:"filename"`
	MD5          string       `yaml:"md5"`
	Destinations []string     `yaml:"destinations"`
	Sources      []SourceSpec `yaml:"sources"`
	Extract      *ExtractSpec `yaml:"extract"`
}

// SourceSpec describes one hosting location. Kind selects which fields apply.
type SourceSpec struct {
	Kind      string `yaml:"kind"`
	Repo      string `yaml:"repo"`
	Subfolder string `yaml:"subfolder"`
	Filename  string `yaml:"filename"`
	Revision  string `yaml:"revision"`
	ID        string `yaml:"id"`
	URL       string `yaml:"url"`
	Referer   string `yaml:"referer"`
}

type ExtractSpec struct {
	Dir      string `yaml:"dir"`
	Conflict string `yaml:"conflict"`
	Glob     string `yaml:"glob"`
	Password string `yaml:"password"`
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	return ParseManifest(f)
}

func ParseManifest(r io.Reader) (*Manifest, error) {
	var m Manifest

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}

	for name, p := range m.Pipelines {
		if p == nil {
			return nil, fmt.Errorf("pipeline %s is empty", name)
		}

		p.Name = name

		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("pipeline %s: %w", name, err)
		}
	}

	return &m, nil
}

// Names returns the pipeline names in sorted order.
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.Pipelines))
	for name := range m.Pipelines {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func (m *Manifest) Pipeline(name string) (*Pipeline, error) {
	p, ok := m.Pipelines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s (known: %s)", ErrUnknownPipeline, name, strings.Join(m.Names(), ", "))
	}

	return p, nil
}

func (p *Pipeline) validate() error {
	for i, s := range p.Steps {
		if len(s.Command) == 0 {
			return fmt.Errorf("step %d (%s) has no command", i, s.Name)
		}
	}

	seen := make(map[string]struct{}, len(p.Artifacts))

	for _, a := range p.Artifacts {
		if a.Name == "" {
			return errors.New("artifact without a name")
		}

		if _, dup := seen[a.Name]; dup {
			return fmt.Errorf("artifact %s listed twice", a.Name)
		}

		seen[a.Name] = struct{}{}

		if len(a.Destinations) == 0 {
			return fmt.Errorf("artifact %s has no destinations", a.Name)
		}

		if len(a.Sources) == 0 {
			return fmt.Errorf("artifact %s has no sources", a.Name)
		}

		for _, s := range a.Sources {
			switch s.Kind {
			case source.KindHuggingFace, source.KindGoogleDrive, source.KindCookieHost, source.KindDirect:
			default:
				return fmt.Errorf("artifact %s: unknown source kind %q", a.Name, s.Kind)
			}
		}

		if a.Extract != nil {
			if _, err := archive.ParseConflict(a.Extract.Conflict); err != nil {
				return fmt.Errorf("artifact %s: %w", a.Name, err)
			}
		}
	}

	return nil
}

// SourceBuilder turns manifest source entries into live sources sharing the same
// hub, drive resolver and session cookie.
type SourceBuilder struct {
	Hub        *source.Hub
	Drive      *source.Drive
	Cookie     *http.Cookie
	JarDir     string
	NeedMirror bool
	Mirror     string
}

func (b *SourceBuilder) Build(spec SourceSpec) source.Source {
	switch spec.Kind {
	case source.KindHuggingFace:
		return source.HuggingFace{Hub: b.Hub, Repo: spec.Repo, Subfolder: spec.Subfolder, Filename: spec.Filename, Revision: spec.Revision}
	case source.KindGoogleDrive:
		id := spec.ID
		if id == "" {
			id = spec.URL
		}

		return source.GoogleDrive{Drive: b.Drive, ID: id}
	case source.KindCookieHost:
		return source.CookieHost{URL: spec.URL, Referer: spec.Referer, Cookie: b.Cookie, JarDir: b.JarDir}
	default:
		return source.Direct{URL: spec.URL, Referer: spec.Referer, NeedMirror: b.NeedMirror, Mirror: b.Mirror}
	}
}

// Job is one artifact to resolve, plus where to unpack it afterwards.
type Job struct {
	Artifact source.Artifact
	Extract  *ExtractJob
}

type ExtractJob struct {
	Dir     string
	Options archive.Options
}

// Jobs resolves the pipeline's artifacts against installRoot. Relative paths are
// taken relative to the pipeline root.
func (p *Pipeline) Jobs(installRoot string, b *SourceBuilder) []Job {
	root := filepath.Join(installRoot, p.Root)
	jobs := make([]Job, 0, len(p.Artifacts))

	for _, a := range p.Artifacts {
		art := source.Artifact{
			Name:     a.Name,
			Filename: a.Filename,
			Checksum: strings.ToLower(a.MD5),
		}

		for _, d := range a.Destinations {
			art.Destinations = append(art.Destinations, within(root, d))
		}

		if art.Filename == "" {
			art.Filename = filepath.Base(art.Destinations[0])
		}

		for _, s := range a.Sources {
			art.Sources = append(art.Sources, b.Build(s))
		}

		job := Job{Artifact: art}

		if a.Extract != nil {
			conflict, _ := archive.ParseConflict(a.Extract.Conflict)
			dir := a.Extract.Dir
			if dir == "" {
				dir = filepath.Dir(art.Destinations[0])
			} else {
				dir = within(root, dir)
			}

			job.Extract = &ExtractJob{
				Dir: dir,
				Options: archive.Options{
					Conflict: conflict,
					Password: a.Extract.Password,
					Glob:     a.Extract.Glob,
				},
			}
		}

		jobs = append(jobs, job)
	}

	return jobs
}

// CommandSteps builds the pipeline's setup commands, run from the pipeline root.
func (p *Pipeline) CommandSteps(installRoot string) []Step {
	root := filepath.Join(installRoot, p.Root)
	steps := make([]Step, 0, len(p.Steps))

	for _, s := range p.Steps {
		dir := root
		if s.Dir != "" {
			dir = within(root, s.Dir)
		}

		steps = append(steps, &CommandStep{Label: s.Name, Command: s.Command, Dir: dir, Env: s.Env})
	}

	return steps
}

func within(root, p string) string {
	if filepath.IsAbs(p) {
		return p
	}

	return filepath.Join(root, p)
}
