// Package inmemdb is an in-memory implementation of the grading store, used in tests. Every write clones the
// tables and runs under one lock, so transactions never overlap.
package inmemdb

import (
	"context"
	"sync"

	"github.com/trezcool/gradebook/core/grading"
)

type (
	DB struct {
		mutex sync.RWMutex
		data  *tables
	}

	tables struct {
		classes      map[string]grading.Class
		rosters      map[string]map[string]grading.Student // {classID: {studentID: Student}}
		categorySets map[string][]grading.CategorySet      // {classID: versions, oldest first}
		scores       map[string]grading.RawScore           // {scoreID: RawScore}
		extraCredits map[string]grading.ExtraCredit        // {classID/studentID: ExtraCredit}
		grades       map[string]grading.StudentGrades      // {classID/studentID: StudentGrades}
	}
)

func Open() *DB {
	return &DB{
		data: &tables{
			classes:      make(map[string]grading.Class),
			rosters:      make(map[string]map[string]grading.Student),
			categorySets: make(map[string][]grading.CategorySet),
			scores:       make(map[string]grading.RawScore),
			extraCredits: make(map[string]grading.ExtraCredit),
			grades:       make(map[string]grading.StudentGrades),
		},
	}
}

// clone copies the tables for a transaction. Values are replaced, never mutated in place, so copying the maps is enough.
func (t *tables) clone() *tables {
	c := &tables{
		classes:      make(map[string]grading.Class, len(t.classes)),
		rosters:      make(map[string]map[string]grading.Student, len(t.rosters)),
		categorySets: make(map[string][]grading.CategorySet, len(t.categorySets)),
		scores:       make(map[string]grading.RawScore, len(t.scores)),
		extraCredits: make(map[string]grading.ExtraCredit, len(t.extraCredits)),
		grades:       make(map[string]grading.StudentGrades, len(t.grades)),
	}
	for k, v := range t.classes {
		c.classes[k] = v
	}
	for k, v := range t.rosters {
		roster := make(map[string]grading.Student, len(v))
		for sk, sv := range v {
			roster[sk] = sv
		}
		c.rosters[k] = roster
	}
	for k, v := range t.categorySets {
		c.categorySets[k] = append([]grading.CategorySet(nil), v...)
	}
	for k, v := range t.scores {
		c.scores[k] = v
	}
	for k, v := range t.extraCredits {
		c.extraCredits[k] = v
	}
	for k, v := range t.grades {
		c.grades[k] = v
	}
	return c
}

// AddClass creates or replaces a class. Classes and rosters are owned by the school app; these helpers seed them.
func (db *DB) CreateClass(_ context.Context, class grading.Class) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.data.classes[class.ID] = class
	return nil
}

// Enroll adds students to the roster of a class.
func (db *DB) Enroll(_ context.Context, classID string, students ...grading.Student) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	roster, ok := db.data.rosters[classID]
	if !ok {
		roster = make(map[string]grading.Student)
		db.data.rosters[classID] = roster
	}
	for _, st := range students {
		roster[st.ID] = st
	}
	return nil
}

func studentKey(classID, studentID string) string {
	return classID + "/" + studentID
}
