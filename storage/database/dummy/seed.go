package dummydb

import (
	"github.com/trezcool/mahudhurio/core/admin"
	"github.com/trezcool/mahudhurio/core/event"
	"github.com/trezcool/mahudhurio/core/school"
)

// Seed helpers populate reference data that has no repository write path.

func (db *DB) SeedDepartment(dep school.Department) school.Department {
	db.mu.Lock()
	defer db.mu.Unlock()
	dep.ID = db.nextID()
	if dep.Status == "" {
		dep.Status = school.StatusActive
	}
	db.departments[dep.ID] = &dep
	return dep
}

func (db *DB) SeedCourse(crs school.Course) school.Course {
	db.mu.Lock()
	defer db.mu.Unlock()
	crs.ID = db.nextID()
	if crs.Status == "" {
		crs.Status = school.StatusActive
	}
	db.courses[crs.ID] = &crs
	return crs
}

func (db *DB) SeedYearLevel(yl school.YearLevel) school.YearLevel {
	db.mu.Lock()
	defer db.mu.Unlock()
	yl.ID = db.nextID()
	db.yearLevels[yl.ID] = &yl
	return yl
}

func (db *DB) SeedAdmin(adm admin.Admin) admin.Admin {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.admins[adm.IDNumber] = &adm
	return adm
}

func (db *DB) SeedEventName(name event.EventName) event.EventName {
	db.mu.Lock()
	defer db.mu.Unlock()
	name.ID = db.nextID()
	if name.Status == "" {
		name.Status = "Active"
	}
	db.eventNames[name.ID] = &name
	return name
}
