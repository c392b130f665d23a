package main

import (
	"os"
	"path/filepath"

	"github.com/damianoneill/junosmgr/junos"
	"github.com/damianoneill/junosmgr/junos/template"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Change describes one configuration change to be applied to a device.
type Change struct {
	Host         string        `yaml:"host"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	Port         int           `yaml:"port"`
	Mode         junos.Mode    `yaml:"mode"`
	Template     string        `yaml:"template"`
	TemplateFile string        `yaml:"template_file"`
	Vars         template.Vars `yaml:"vars"`
	Commit       CommitOptions `yaml:"commit"`
	CheckOnly    bool          `yaml:"check_only"`
}

// CommitOptions are the options of the commit that completes a change.
type CommitOptions struct {
	Comment   string `yaml:"comment"`
	Confirmed int    `yaml:"confirmed"`
}

// loadChange reads a change file. A relative template_file is resolved against the directory
// holding the change file.
func loadChange(path string) (*Change, error) {
	data, err := os.ReadFile(path) // nolint: gosec
	if err != nil {
		return nil, err
	}

	c := &Change{}
	if err = yaml.Unmarshal(data, c); err != nil {
		return nil, errors.Wrapf(err, "invalid change file %s", path)
	}

	switch {
	case c.Host == "":
		return nil, errors.Errorf("%s: host is required", path)
	case c.Template != "" && c.TemplateFile != "":
		return nil, errors.Errorf("%s: only one of template and template_file may be set", path)
	case c.Template == "" && c.TemplateFile == "":
		return nil, errors.Errorf("%s: one of template or template_file is required", path)
	case c.Commit.Confirmed < 0:
		return nil, errors.Errorf("%s: commit.confirmed must not be negative", path)
	}

	if c.TemplateFile != "" {
		file := c.TemplateFile
		if !filepath.IsAbs(file) {
			file = filepath.Join(filepath.Dir(path), file)
		}
		text, err := os.ReadFile(file) // nolint: gosec
		if err != nil {
			return nil, err
		}
		c.Template = string(text)
	}
	return c, nil
}

func (c *Change) commitOptions() (opts []junos.CommitOption) {
	if c.Commit.Comment != "" {
		opts = append(opts, junos.WithComment(c.Commit.Comment))
	}
	if c.Commit.Confirmed > 0 {
		opts = append(opts, junos.WithConfirmed(c.Commit.Confirmed))
	}
	return opts
}
