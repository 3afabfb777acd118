package models

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidKind        = errors.New("invalid notification kind")
	ErrInvalidPeriodicity = errors.New("invalid periodicity")
	ErrInvalidTime        = errors.New("invalid time of day")
)

// Kind is the closed set of notification kinds the engine knows how to deliver.
type Kind string

const (
	KindMorning             Kind = "morning"
	KindCustom              Kind = "custom"
	KindPreTrainingReminder Kind = "pre_training_reminder"
	KindTrainingReminder    Kind = "training_reminder"
	KindStopTraining        Kind = "stop_training"
)

// Family groups kinds that share a poll loop.
type Family string

const (
	FamilyMorning      Family = "morning"
	FamilyCustom       Family = "custom"
	FamilyPreTraining  Family = "pre_training"
	FamilyTraining     Family = "training"
	FamilyStopTraining Family = "stop_training"
)

// KindSpec describes how a kind behaves after a delivery attempt.
type KindSpec struct {
	// Recurring kinds are re-armed for their next cycle after delivery,
	// the others are retired.
	Recurring bool
	// Escalates marks kinds whose delivery failures are reported to admins.
	Escalates bool
	Family    Family
}

var kindSpecs = map[Kind]KindSpec{
	KindMorning:             {Recurring: true, Escalates: true, Family: FamilyMorning},
	KindCustom:              {Recurring: true, Family: FamilyCustom},
	KindPreTrainingReminder: {Family: FamilyPreTraining},
	KindTrainingReminder:    {Family: FamilyTraining},
	KindStopTraining:        {Family: FamilyStopTraining},
}

var allKinds = []Kind{
	KindMorning,
	KindCustom,
	KindPreTrainingReminder,
	KindTrainingReminder,
	KindStopTraining,
}

var allFamilies = []Family{
	FamilyMorning,
	FamilyCustom,
	FamilyPreTraining,
	FamilyTraining,
	FamilyStopTraining,
}

func Kinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

func Families() []Family {
	out := make([]Family, len(allFamilies))
	copy(out, allFamilies)
	return out
}

func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
	return k, nil
}

func (k Kind) Valid() bool {
	_, ok := kindSpecs[k]
	return ok
}

func (k Kind) Spec() (KindSpec, bool) {
	spec, ok := kindSpecs[k]
	return spec, ok
}

func (k Kind) Recurring() bool {
	return kindSpecs[k].Recurring
}

// Kinds returns the kinds polled by the family.
func (f Family) Kinds() []Kind {
	var out []Kind
	for _, k := range allKinds {
		if kindSpecs[k].Family == f {
			out = append(out, k)
		}
	}
	return out
}
