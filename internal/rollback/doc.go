// Package rollback реализует компенсацию ресурсов, созданных
// provisioning-пайплайном.
//
// Manager решает, нужна ли компенсация (determine strategy), и
// выполняет её: обходит созданные ресурсы по убыванию приоритета
// и диспетчеризует каждый в компенсатор своего типа. Реестр
// компенсаторов закрытый: неизвестный тип ресурса логируется
// и пропускается, никогда не прерывая компенсацию остальных.
//
// Каждая попытка отката записывается в историю (Postgres) для
// последующего разбора и дочистки осиротевших ресурсов.
package rollback
