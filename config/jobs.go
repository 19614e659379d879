package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Job is one product listing to scrape.
type Job struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type jobsFile struct {
	Products []Job `yaml:"products"`
}

// LoadJobs reads the product list from a YAML file.
func LoadJobs(path string) ([]Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jobs file: %w", err)
	}
	return ParseJobs(data)
}

// ParseJobs decodes and validates a YAML product list.
func ParseJobs(data []byte) ([]Job, error) {
	var file jobsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode jobs: %w", err)
	}
	if len(file.Products) == 0 {
		return nil, fmt.Errorf("jobs file lists no products")
	}

	jobs := make([]Job, 0, len(file.Products))
	for i, job := range file.Products {
		job.Name = strings.TrimSpace(job.Name)
		job.URL = strings.TrimSpace(job.URL)
		if job.Name == "" {
			return nil, fmt.Errorf("product %d: name cannot be empty", i+1)
		}
		parsed, err := url.Parse(job.URL)
		if err != nil || parsed.Host == "" {
			return nil, fmt.Errorf("product %q: invalid url %q", job.Name, job.URL)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
