// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package server implements the fish species Prediction Service: an HTTP endpoint that takes an uploaded
// image and returns the predicted species, its confidence and the species information.
package server

import (
	"encoding/json"
	"image"
	"math"
	"os"

	"github.com/pkg/errors"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/labels"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/predict"
)

// Classifier returns the probability of each class for an image. predict.Predictor implements it.
type Classifier interface {
	Probabilities(img image.Image) ([]float32, error)
}

// SpeciesInfo holds free-form information about each species, keyed by species name.
type SpeciesInfo map[string]map[string]any

// LoadSpeciesInfo reads the species information JSON file.
func LoadSpeciesInfo(path string) (SpeciesInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read species information")
	}
	var info SpeciesInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, errors.Wrapf(err, "invalid species information in %q", path)
	}
	return info, nil
}

// Lookup returns the information of the species, or an empty map if there is none.
func (s SpeciesInfo) Lookup(species string) map[string]any {
	if info, found := s[species]; found && info != nil {
		return info
	}
	return map[string]any{}
}

// PredictResponse is the JSON response of a successful prediction.
type PredictResponse struct {
	Species    string         `json:"species"`
	Confidence float64        `json:"confidence"`
	Info       map[string]any `json:"info"`
}

// HealthResponse is the JSON response of the health endpoint.
type HealthResponse struct {
	Status     string   `json:"status"`
	NumClasses int      `json:"num_classes"`
	Classes    []string `json:"classes"`
	LabelHash  string   `json:"label_hash"`
}

// ServiceContext holds everything the handlers need. It's created once at startup and never modified.
type ServiceContext struct {
	classifier Classifier
	idx2cls    map[int]string
	classes    []string
	labelHash  string
	species    SpeciesInfo
}

// NewServiceContext creates the ServiceContext. The label index must be the one the classifier was trained with.
// species may be nil.
func NewServiceContext(classifier Classifier, index *labels.Index, species SpeciesInfo) (*ServiceContext, error) {
	if classifier == nil {
		return nil, errors.New("server: no classifier given")
	}
	if index == nil {
		return nil, errors.New("server: no label index given")
	}
	if species == nil {
		species = SpeciesInfo{}
	}
	return &ServiceContext{
		classifier: classifier,
		idx2cls:    index.Invert(),
		classes:    index.Names(),
		labelHash:  index.Hash(),
		species:    species,
	}, nil
}

// RoundConfidence rounds to 2 decimal places.
func RoundConfidence(p float32) float64 {
	return math.Round(float64(p)*100) / 100
}

// Predict classifies img.
func (s *ServiceContext) Predict(img image.Image) (*PredictResponse, error) {
	probs, err := s.classifier.Probabilities(img)
	if err != nil {
		return nil, err
	}
	if len(probs) != len(s.idx2cls) {
		return nil, errors.Errorf("classifier returned %d probabilities, but there are %d classes", len(probs), len(s.idx2cls))
	}
	best := predict.BestClass(probs)
	species := s.idx2cls[best]
	return &PredictResponse{
		Species:    species,
		Confidence: RoundConfidence(probs[best]),
		Info:       s.species.Lookup(species),
	}, nil
}

// Health returns the summary reported by the health endpoint.
func (s *ServiceContext) Health() *HealthResponse {
	return &HealthResponse{
		Status:     "ok",
		NumClasses: len(s.classes),
		Classes:    s.classes,
		LabelHash:  s.labelHash,
	}
}
